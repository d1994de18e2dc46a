package domain

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DroughtClass is a Palmer severity category.
type DroughtClass string

const (
	DroughtExtreme       DroughtClass = "extreme_drought"
	DroughtSevere        DroughtClass = "severe_drought"
	DroughtModerate      DroughtClass = "moderate_drought"
	DroughtMild          DroughtClass = "mild_drought"
	DroughtNearNormal    DroughtClass = "near_normal"
	DroughtSlightlyWet   DroughtClass = "slightly_wet"
	DroughtModeratelyWet DroughtClass = "moderately_wet"
	DroughtVeryWet       DroughtClass = "very_wet"
	DroughtExtremelyWet  DroughtClass = "extremely_wet"
	DroughtUnknown       DroughtClass = "unknown"
)

// ClassifyPDSI maps a scaled PDSI value to its Palmer class.
func ClassifyPDSI(v float64) DroughtClass {
	switch {
	case v <= -4:
		return DroughtExtreme
	case v <= -3:
		return DroughtSevere
	case v <= -2:
		return DroughtModerate
	case v <= -1:
		return DroughtMild
	case v < 1:
		return DroughtNearNormal
	case v < 2:
		return DroughtSlightlyWet
	case v < 3:
		return DroughtModeratelyWet
	case v < 4:
		return DroughtVeryWet
	default:
		return DroughtExtremelyWet
	}
}

// DroughtBucket is the monthly drought value of one feature.
type DroughtBucket struct {
	StatRow
	Samples int          `json:"samples"`
	Class   DroughtClass `json:"class"`
}

// DroughtTable holds the per-observation series and its monthly buckets.
type DroughtTable struct {
	Band    Band            `json:"band"`
	Series  []StatRow       `json:"series"`
	Monthly []DroughtBucket `json:"monthly"`
}

// Drought de-scales raw observations of band by scaleFactor, reduces each one
// to its mean over every region feature, then averages those means per
// (year, month, feature). The monthly value is a mean of per-observation
// means, not a mean over all pixels of the month.
func Drought(rc RunContext, obs []Observation, band Band, scaleFactor float64) (DroughtTable, error) {
	images := make([]CompositeImage, 0, len(obs))
	for _, img := range PerImage(rc, obs) {
		g, ok := img.Bands[band]
		if !ok {
			return DroughtTable{}, fmt.Errorf("drought %s: %w: %s", img.ID, ErrUnknownBand, band)
		}
		img.Bands = Bands{band: g.Scale(scaleFactor)}
		images = append(images, img)
	}

	series, err := Reduce(rc, images, StatMean)
	if err != nil {
		return DroughtTable{}, err
	}

	type bucketKey struct {
		period  PeriodKey
		feature string
	}
	sums := make(map[bucketKey][]float64)
	var order []bucketKey
	for _, row := range series {
		k := bucketKey{row.Period, row.FeatureID}
		if _, seen := sums[k]; !seen {
			order = append(order, k)
			sums[k] = nil
		}
		if v, ok := row.Value(band); ok {
			sums[k] = append(sums[k], v)
		}
	}

	monthly := make([]DroughtBucket, 0, len(order))
	for _, k := range order {
		b := DroughtBucket{
			StatRow: StatRow{
				Period:    k.period,
				Date:      k.period.Start(),
				ImageID:   k.period.String(),
				FeatureID: k.feature,
				Values:    map[Band]*float64{band: nil},
			},
			Samples: len(sums[k]),
			Class:   DroughtUnknown,
		}
		if len(sums[k]) > 0 {
			m := stat.Mean(sums[k], nil)
			b.Values[band] = &m
			b.Class = ClassifyPDSI(m)
		}
		monthly = append(monthly, b)
	}

	return DroughtTable{Band: band, Series: series, Monthly: monthly}, nil
}

// MonthlyRows returns the bucket rows without drought metadata.
func (t DroughtTable) MonthlyRows() []StatRow {
	rows := make([]StatRow, len(t.Monthly))
	for i, b := range t.Monthly {
		rows[i] = b.StatRow
	}
	return rows
}

// HeatMap returns, for one feature, a year → month → value grid of the
// monthly buckets. Months without data are nil.
func (t DroughtTable) HeatMap(featureID string) map[int][12]*float64 {
	out := make(map[int][12]*float64)
	for _, b := range t.Monthly {
		if b.FeatureID != featureID {
			continue
		}
		row := out[b.Period.Year]
		row[b.Period.Month-time.January] = b.Values[t.Band]
		out[b.Period.Year] = row
	}
	return out
}
