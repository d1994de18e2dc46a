package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrInvalidGeometry    = errors.New("invalid geometry")
	ErrEmptyComposite     = errors.New("empty composite")
	ErrJoinGap            = errors.New("join gap")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrEmptyInput         = errors.New("empty input")

	ErrUnknownVariable = errors.New("unknown variable")
	ErrUnknownBand     = errors.New("unknown band")
	ErrGridMismatch    = errors.New("grid mismatch")
	ErrDuplicatePeriod = errors.New("duplicate period")
	ErrBandCollision   = errors.New("band collision")
	ErrInvalidRange    = errors.New("invalid date range")

	// ErrRejected marks a backend response that retrying cannot fix, such as a 4xx status.
	ErrRejected = errors.New("rejected by backend")
)

// InvalidGeometryError reports a missing, empty, or unparsable ROI.
type InvalidGeometryError struct {
	Reason string
	Err    error
}

func (e *InvalidGeometryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid geometry: %s: %v", e.Reason, e.Err)
	}
	return "invalid geometry: " + e.Reason
}

func (e *InvalidGeometryError) Unwrap() error { return e.Err }

func (e *InvalidGeometryError) Is(target error) bool { return target == ErrInvalidGeometry }

// UserMessage returns a message safe to show without internal details.
func (e *InvalidGeometryError) UserMessage() string {
	return "The region of interest is not valid: " + e.Reason + "."
}

// EmptyCompositeError is a labeled gap: a period with no contributing observation.
type EmptyCompositeError struct {
	Variable Variable  `json:"variable"`
	Period   PeriodKey `json:"period"`
}

func (e *EmptyCompositeError) Error() string {
	return fmt.Sprintf("empty composite: %s has no observations for %s", e.Variable, e.Period)
}

func (e *EmptyCompositeError) Is(target error) bool { return target == ErrEmptyComposite }

func (e *EmptyCompositeError) UserMessage() string {
	return fmt.Sprintf("No %s data for %s.", e.Variable, e.Period)
}

// JoinGapError lists the periods dropped by an inner join.
type JoinGapError struct {
	Left    Variable
	Right   Variable
	Skipped []PeriodKey
}

func (e *JoinGapError) Error() string {
	keys := make([]string, len(e.Skipped))
	for i, k := range e.Skipped {
		keys[i] = k.String()
	}
	return fmt.Sprintf("join gap: %s/%s skipped %d periods [%s]", e.Left, e.Right, len(e.Skipped), strings.Join(keys, ", "))
}

func (e *JoinGapError) Is(target error) bool { return target == ErrJoinGap }

func (e *JoinGapError) UserMessage() string {
	return fmt.Sprintf("%d months are missing from either %s or %s and were left out.", len(e.Skipped), e.Left, e.Right)
}

// BackendUnavailableError wraps the last failure of a raster provider call
// after retries are exhausted.
type BackendUnavailableError struct {
	Op       string
	Variable Variable
	Attempts int
	Err      error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable: %s %s failed after %d attempts: %v", e.Op, e.Variable, e.Attempts, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

func (e *BackendUnavailableError) UserMessage() string {
	return fmt.Sprintf("The raster service did not answer for %s. Try again later.", e.Variable)
}

// EmptyInputError reports a statistic requested over zero rows.
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	return "empty input: no rows for " + e.What
}

func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }

func (e *EmptyInputError) UserMessage() string {
	return "There is no data to summarize for " + e.What + "."
}

// UserMessage extracts a user-facing message from err, falling back to a generic one.
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return "The analysis failed."
}
