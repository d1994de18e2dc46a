package domain

import (
	"fmt"
	"slices"
	"time"
)

// DeriveFunc computes derived bands from an image's bands. The returned map
// holds only the new bands.
type DeriveFunc func(Bands) (Bands, error)

// JoinedRecord pairs two composites of the same period with their merged and
// derived bands.
type JoinedRecord struct {
	Period PeriodKey
	Date   time.Time
	Left   CompositeImage
	Right  CompositeImage
	Bands  Bands
}

// Image returns the record as a single image for reduction.
func (r JoinedRecord) Image() CompositeImage {
	return CompositeImage{
		Variable:     r.Left.Variable,
		ID:           r.Period.String(),
		Period:       r.Period,
		Date:         r.Date,
		Bands:        r.Bands,
		Contributors: r.Left.Contributors,
	}
}

// Join inner-joins two aligned series on period. Right's bands are attached
// to left's image and derive, when non-nil, adds derived bands. Periods found
// in only one input are returned as skipped, in order. Output is ascending by
// period whatever the input order.
func Join(left, right []CompositeImage, derive DeriveFunc) ([]JoinedRecord, []PeriodKey, error) {
	lidx, err := indexByPeriod(left)
	if err != nil {
		return nil, nil, fmt.Errorf("join left: %w", err)
	}
	ridx, err := indexByPeriod(right)
	if err != nil {
		return nil, nil, fmt.Errorf("join right: %w", err)
	}

	var (
		records []JoinedRecord
		skipped []PeriodKey
	)
	for k, l := range lidx {
		r, ok := ridx[k]
		if !ok {
			skipped = append(skipped, k)
			continue
		}
		bands, err := l.Bands.Merge(r.Bands)
		if err != nil {
			return nil, nil, fmt.Errorf("join %s: %w", k, err)
		}
		if derive != nil {
			extra, err := derive(bands)
			if err != nil {
				return nil, nil, fmt.Errorf("derive %s: %w", k, err)
			}
			if bands, err = bands.Merge(extra); err != nil {
				return nil, nil, fmt.Errorf("derive %s: %w", k, err)
			}
		}
		records = append(records, JoinedRecord{Period: k, Date: k.Start(), Left: l, Right: r, Bands: bands})
	}
	for k := range ridx {
		if _, ok := lidx[k]; !ok {
			skipped = append(skipped, k)
		}
	}

	slices.SortFunc(records, func(a, b JoinedRecord) int { return a.Period.Compare(b.Period) })
	slices.SortFunc(skipped, PeriodKey.Compare)
	return records, skipped, nil
}

func indexByPeriod(images []CompositeImage) (map[PeriodKey]CompositeImage, error) {
	idx := make(map[PeriodKey]CompositeImage, len(images))
	for _, img := range images {
		if _, dup := idx[img.Period]; dup {
			return nil, fmt.Errorf("%w: %s %s", ErrDuplicatePeriod, img.Variable, img.Period)
		}
		idx[img.Period] = img
	}
	return idx, nil
}

// DeriveEach applies derive to each image independently, for series that need
// derived bands but have no partner series.
func DeriveEach(images []CompositeImage, derive DeriveFunc) ([]CompositeImage, error) {
	out := make([]CompositeImage, len(images))
	for i, img := range images {
		extra, err := derive(img.Bands)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", img.ID, err)
		}
		bands, err := img.Bands.Merge(extra)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", img.ID, err)
		}
		img.Bands = bands
		out[i] = img
	}
	return out, nil
}
