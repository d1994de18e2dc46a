package domain

import (
	"fmt"
	"time"
)

// PeriodKey identifies one calendar month.
type PeriodKey struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t, evaluated in UTC.
func PeriodOf(t time.Time) PeriodKey {
	t = t.UTC()
	return PeriodKey{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the period.
func (k PeriodKey) Start() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls inside the period.
func (k PeriodKey) Contains(t time.Time) bool {
	return PeriodOf(t) == k
}

// Compare orders periods chronologically.
func (k PeriodKey) Compare(o PeriodKey) int {
	switch {
	case k.Year != o.Year:
		if k.Year < o.Year {
			return -1
		}
		return 1
	case k.Month != o.Month:
		if k.Month < o.Month {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether k sorts before o.
func (k PeriodKey) Before(o PeriodKey) bool { return k.Compare(o) < 0 }

func (k PeriodKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k PeriodKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PeriodKey) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01", string(b))
	if err != nil {
		return fmt.Errorf("parse period %q: %w", b, err)
	}
	*k = PeriodOf(t)
	return nil
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange validates and normalizes a range to UTC.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return DateRange{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t lies in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// IsEmpty reports whether the range contains no instant.
func (r DateRange) IsEmpty() bool {
	return !r.End.After(r.Start)
}

// MonthlyWindow widens the range to whole calendar years:
// [Jan 1 of Start's year, Jan 1 of End's year).
func (r DateRange) MonthlyWindow() DateRange {
	return DateRange{
		Start: time.Date(r.Start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(r.End.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Periods enumerates every month of every year in the monthly window, in order.
func (r DateRange) Periods() []PeriodKey {
	first, last := r.Start.Year(), r.End.Year()
	if last <= first {
		return nil
	}
	keys := make([]PeriodKey, 0, (last-first)*12)
	for y := first; y < last; y++ {
		for m := time.January; m <= time.December; m++ {
			keys = append(keys, PeriodKey{Year: y, Month: m})
		}
	}
	return keys
}

// YearRange returns the range covering one calendar year.
func YearRange(year int) DateRange {
	return DateRange{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}
