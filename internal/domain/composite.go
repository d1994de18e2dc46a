package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

// Observation is one raw raster image with its bands already read.
type Observation struct {
	ObservationRef
	Bands Bands `json:"-"`
}

// SortObservations orders observations by timestamp, then id.
func SortObservations(obs []Observation) {
	slices.SortStableFunc(obs, func(a, b Observation) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// CompositeImage is one variable's image for one period, or a single
// observation when a series is kept per image.
type CompositeImage struct {
	Variable     Variable
	ID           string
	Period       PeriodKey
	Date         time.Time
	Bands        Bands
	Contributors int
}

// HasBands reports whether the composite carries any band.
func (c CompositeImage) HasBands() bool { return len(c.Bands) > 0 }

// RunContext carries the immutable inputs every stage needs.
type RunContext struct {
	Region       *Region
	Window       DateRange
	NominalScale float64
}

// Series is an aligned, filtered sequence of composites plus the periods that
// were dropped for lack of data.
type Series struct {
	Variable   Variable
	Composites []CompositeImage
	Gaps       []EmptyCompositeError
}

// Keys returns the periods present in the series, in order.
func (s Series) Keys() []PeriodKey {
	keys := make([]PeriodKey, len(s.Composites))
	for i, c := range s.Composites {
		keys[i] = c.Period
	}
	return keys
}

// Composite buckets observations into the given periods and folds each bucket
// with rule. Bands are clipped to the region. Periods without observations
// yield band-less composites; callers pass the result through NonEmpty.
func Composite(rc RunContext, variable Variable, obs []Observation, periods []PeriodKey, rule CombineRule) ([]CompositeImage, error) {
	if rc.Region == nil {
		return nil, &InvalidGeometryError{Reason: "no region"}
	}
	buckets := make(map[PeriodKey][]Observation, len(periods))
	for _, o := range obs {
		k := PeriodOf(o.Timestamp)
		buckets[k] = append(buckets[k], o)
	}

	out := make([]CompositeImage, 0, len(periods))
	for _, k := range periods {
		c := CompositeImage{
			Variable: variable,
			ID:       k.String(),
			Period:   k,
			Date:     k.Start(),
		}
		members := buckets[k]
		if len(members) > 0 {
			SortObservations(members)
			bands, err := combine(members, rule)
			if err != nil {
				return nil, fmt.Errorf("composite %s %s: %w", variable, k, err)
			}
			for name, g := range bands {
				bands[name] = rc.Region.Clip(g)
			}
			c.Bands = bands
			c.Contributors = len(members)
		}
		out = append(out, c)
	}
	return out, nil
}

// NonEmpty drops composites without bands and reports each as a labeled gap.
func NonEmpty(composites []CompositeImage) ([]CompositeImage, []EmptyCompositeError) {
	kept := make([]CompositeImage, 0, len(composites))
	var gaps []EmptyCompositeError
	for _, c := range composites {
		if !c.HasBands() {
			gaps = append(gaps, EmptyCompositeError{Variable: c.Variable, Period: c.Period})
			continue
		}
		kept = append(kept, c)
	}
	return kept, gaps
}

// AlignMonthly composites observations per calendar month across the run
// window and filters empty periods.
func AlignMonthly(rc RunContext, variable Variable, obs []Observation, rule CombineRule) (Series, error) {
	all, err := Composite(rc, variable, obs, rc.Window.Periods(), rule)
	if err != nil {
		return Series{}, err
	}
	kept, gaps := NonEmpty(all)
	return Series{Variable: variable, Composites: kept, Gaps: gaps}, nil
}

// PerImage turns each observation into its own clipped image, keyed by its
// timestamp. Used for series that are not composited, such as optical indices.
func PerImage(rc RunContext, obs []Observation) []CompositeImage {
	sorted := slices.Clone(obs)
	SortObservations(sorted)
	out := make([]CompositeImage, 0, len(sorted))
	for _, o := range sorted {
		bands := make(Bands, len(o.Bands))
		for name, g := range o.Bands {
			bands[name] = rc.Region.Clip(g)
		}
		out = append(out, CompositeImage{
			Variable:     o.Variable,
			ID:           o.ID,
			Period:       PeriodOf(o.Timestamp),
			Date:         o.Timestamp.UTC(),
			Bands:        bands,
			Contributors: 1,
		})
	}
	return out
}

// combine folds sorted observations band by band. Masked pixels do not
// contribute; a pixel masked in every observation stays masked.
func combine(obs []Observation, rule CombineRule) (Bands, error) {
	if rule == CombineIdentity {
		out := make(Bands, len(obs[0].Bands))
		for name, g := range obs[0].Bands {
			out[name] = g
		}
		return out, nil
	}

	out := make(Bands, len(obs[0].Bands))
	for _, name := range obs[0].Bands.Names() {
		first := obs[0].Bands[name]
		sums := make([]float64, len(first.Values))
		counts := make([]int, len(first.Values))
		for _, o := range obs {
			g, ok := o.Bands[name]
			if !ok {
				return nil, fmt.Errorf("%w: observation %s lacks %s", ErrUnknownBand, o.ID, name)
			}
			if g.Spec != first.Spec {
				return nil, fmt.Errorf("%w: observation %s band %s", ErrGridMismatch, o.ID, name)
			}
			for i, v := range g.Values {
				if math.IsNaN(v) {
					continue
				}
				sums[i] += v
				counts[i]++
			}
		}
		for i := range sums {
			switch {
			case counts[i] == 0:
				sums[i] = math.NaN()
			case rule == CombineMean:
				sums[i] /= float64(counts[i])
			}
		}
		out[name] = Grid{Spec: first.Spec, Values: sums}
	}
	return out, nil
}
