package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid geometry", &InvalidGeometryError{Reason: "empty", Err: cause}, ErrInvalidGeometry},
		{"empty composite", &EmptyCompositeError{Variable: VarET, Period: PeriodKey{2023, time.May}}, ErrEmptyComposite},
		{"join gap", &JoinGapError{Left: VarPrecipitation, Right: VarET}, ErrJoinGap},
		{"backend unavailable", &BackendUnavailableError{Op: "query", Variable: VarET, Attempts: 3, Err: cause}, ErrBackendUnavailable},
		{"empty input", &EmptyInputError{What: "summary"}, ErrEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("run: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotEqual(t, "The analysis failed.", UserMessage(wrapped))
		})
	}
}

func TestBackendUnavailableError_Unwrap(t *testing.T) {
	err := &BackendUnavailableError{Op: "read", Variable: VarET, Attempts: 4, Err: ErrRejected}
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestUserMessage_Fallback(t *testing.T) {
	assert.Equal(t, "The analysis failed.", UserMessage(errors.New("boom")))
}
