package domain

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Indicator labels.
const (
	LabelExcess  = "excess"
	LabelDeficit = "deficit"
)

// BandStats are the column statistics of one band.
type BandStats struct {
	Band  Band    `json:"band"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Indicator is an extremal value taken from a result table.
type Indicator struct {
	Label     string    `json:"label"`
	Band      Band      `json:"band"`
	Value     float64   `json:"value"`
	Reference float64   `json:"reference"`
	Date      time.Time `json:"date"`
	Period    PeriodKey `json:"period"`
	FeatureID string    `json:"feature_id"`
}

// Summary groups column statistics with the excess and deficit indicators.
// Excess or Deficit is nil when no row lies strictly above or below the mean.
type Summary struct {
	Bands   []BandStats `json:"bands"`
	Excess  *Indicator  `json:"excess,omitempty"`
	Deficit *Indicator  `json:"deficit,omitempty"`
}

// Summarize computes min, mean, and max of each band over rows, plus the
// excess and deficit indicators of indicatorBand. Excess is the largest value
// strictly above the column mean, deficit the smallest strictly below it; on
// ties the chronologically first row wins. Missing values are skipped; a band
// without any value is left out of Bands, and when that band is indicatorBand
// both indicators stay nil. Only an empty table is an EmptyInputError.
func Summarize(rows []StatRow, bands []Band, indicatorBand Band) (Summary, error) {
	if len(rows) == 0 {
		return Summary{}, &EmptyInputError{What: "summary"}
	}
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, CompareRows)

	var s Summary
	for _, b := range bands {
		vals := columnValues(sorted, b)
		if len(vals) == 0 {
			continue
		}
		s.Bands = append(s.Bands, BandStats{
			Band:  b,
			Min:   floats.Min(vals),
			Mean:  stat.Mean(vals, nil),
			Max:   floats.Max(vals),
			Count: len(vals),
		})
	}

	vals := columnValues(sorted, indicatorBand)
	if len(vals) == 0 {
		return s, nil
	}
	mean := stat.Mean(vals, nil)
	for _, row := range sorted {
		v, ok := row.Value(indicatorBand)
		if !ok {
			continue
		}
		if v > mean && (s.Excess == nil || v > s.Excess.Value) {
			s.Excess = newIndicator(LabelExcess, indicatorBand, v, mean, row)
		}
		if v < mean && (s.Deficit == nil || v < s.Deficit.Value) {
			s.Deficit = newIndicator(LabelDeficit, indicatorBand, v, mean, row)
		}
	}
	return s, nil
}

// Stats returns the column statistics of band b, if summarized.
func (s Summary) Stats(b Band) (BandStats, bool) {
	for _, bs := range s.Bands {
		if bs.Band == b {
			return bs, true
		}
	}
	return BandStats{}, false
}

func columnValues(rows []StatRow, b Band) []float64 {
	vals := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.Value(b); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func newIndicator(label string, b Band, v, ref float64, row StatRow) *Indicator {
	return &Indicator{
		Label:     label,
		Band:      b,
		Value:     v,
		Reference: ref,
		Date:      row.Date,
		Period:    row.Period,
		FeatureID: row.FeatureID,
	}
}
