package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistic is a spatial reducer.
type Statistic int

const (
	StatMean Statistic = iota
	StatSum
	StatMin
	StatMax
	StatCount
	StatStdDev
)

var statisticNames = map[Statistic]string{
	StatMean:   "mean",
	StatSum:    "sum",
	StatMin:    "min",
	StatMax:    "max",
	StatCount:  "count",
	StatStdDev: "stddev",
}

func (s Statistic) String() string {
	if name, ok := statisticNames[s]; ok {
		return name
	}
	return fmt.Sprintf("statistic(%d)", int(s))
}

// ParseStatistic maps a name to a Statistic. An empty name is the mean.
func ParseStatistic(name string) (Statistic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return StatMean, nil
	}
	for s, n := range statisticNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown statistic %q", name)
}

// StatRow is one (image, feature) row of a result table. A nil value means
// the statistic is undefined because the feature had no valid pixel.
type StatRow struct {
	Period    PeriodKey         `json:"period"`
	Date      time.Time         `json:"date"`
	ImageID   string            `json:"image_id"`
	FeatureID string            `json:"feature_id"`
	Values    map[Band]*float64 `json:"values"`
}

// Value returns the band value and whether it is defined.
func (r StatRow) Value(b Band) (float64, bool) {
	v, ok := r.Values[b]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Clone returns a copy of r that shares no values with it.
func (r StatRow) Clone() StatRow {
	if r.Values == nil {
		return r
	}
	vals := make(map[Band]*float64, len(r.Values))
	for b, v := range r.Values {
		if v != nil {
			c := *v
			v = &c
		}
		vals[b] = v
	}
	r.Values = vals
	return r
}

// CloneRows deep-copies a table.
func CloneRows(rows []StatRow) []StatRow {
	if rows == nil {
		return nil
	}
	out := make([]StatRow, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// CompareRows orders rows chronologically, then by image and feature.
func CompareRows(a, b StatRow) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ImageID, b.ImageID); c != 0 {
		return c
	}
	return cmp.Compare(a.FeatureID, b.FeatureID)
}

// Reduce computes stat for every band of every image over every region
// feature at the run's nominal scale. It always returns len(images) ×
// features rows, ordered by date.
//
// Feature membership is decided on the native lattice. When the nominal scale
// is coarser than a pixel, a feature's valid pixels are grouped into blocks of
// the nominal size; each block contributes the mean of those pixels, weighted
// by the share of the block they cover. A feature smaller than one block still
// gets a value from the pixels it contains.
func Reduce(rc RunContext, images []CompositeImage, stat Statistic) ([]StatRow, error) {
	if rc.Region == nil {
		return nil, &InvalidGeometryError{Reason: "no region"}
	}
	sorted := slices.Clone(images)
	slices.SortStableFunc(sorted, func(a, b CompositeImage) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	features := rc.Region.Features()
	membership := make(map[GridSpec][][]int)
	rows := make([]StatRow, 0, len(sorted)*len(features))

	for _, img := range sorted {
		perFeature := make([]map[Band]*float64, len(features))
		for i := range perFeature {
			perFeature[i] = make(map[Band]*float64, len(img.Bands))
		}
		for _, name := range img.Bands.Names() {
			g := img.Bands[name]
			members, ok := membership[g.Spec]
			if !ok {
				members = rc.Region.Membership(g.Spec)
				membership[g.Spec] = members
			}
			k := g.Spec.BlockFactor(rc.NominalScale)
			for fi, px := range members {
				perFeature[fi][name] = reduceBlocks(blocks(g, px, k), stat)
			}
		}
		for fi, f := range features {
			rows = append(rows, StatRow{
				Period:    img.Period,
				Date:      img.Date,
				ImageID:   img.ID,
				FeatureID: f.ID,
				Values:    perFeature[fi],
			})
		}
	}
	return rows, nil
}

// block is one nominal-scale cell as seen from a single feature.
type block struct {
	value  float64 // mean of the feature's valid pixels in the cell
	weight float64 // share of the cell those pixels cover
}

// blocks groups the unmasked pixels px of g into k×k cells. With k of 1 every
// valid pixel is its own cell of weight 1. Cells come out in row-major order.
func blocks(g Grid, px []int, k int) []block {
	if k <= 1 {
		out := make([]block, 0, len(px))
		for _, i := range px {
			if v := g.Values[i]; !math.IsNaN(v) {
				out = append(out, block{value: v, weight: 1})
			}
		}
		return out
	}

	type acc struct {
		sum float64
		n   int
	}
	cols := (g.Spec.Cols + k - 1) / k
	cells := make(map[int]*acc)
	var order []int
	for _, i := range px {
		v := g.Values[i]
		if math.IsNaN(v) {
			continue
		}
		r, c := i/g.Spec.Cols, i%g.Spec.Cols
		key := (r/k)*cols + c/k
		a, ok := cells[key]
		if !ok {
			a = &acc{}
			cells[key] = a
			order = append(order, key)
		}
		a.sum += v
		a.n++
	}
	slices.Sort(order)

	out := make([]block, 0, len(order))
	for _, key := range order {
		a := cells[key]
		br, bc := key/cols, key%cols
		h := min(k, g.Spec.Rows-br*k)
		w := min(k, g.Spec.Cols-bc*k)
		out = append(out, block{value: a.sum / float64(a.n), weight: float64(a.n) / float64(h*w)})
	}
	return out
}

// reduceBlocks applies s over the cells of one feature. Mean and Sum are
// coverage-weighted; Count is the number of cells with a valid pixel.
func reduceBlocks(cells []block, s Statistic) *float64 {
	if s == StatCount {
		n := float64(len(cells))
		return &n
	}
	if len(cells) == 0 {
		return nil
	}
	vals := make([]float64, len(cells))
	weights := make([]float64, len(cells))
	for i, c := range cells {
		vals[i], weights[i] = c.value, c.weight
	}

	var out float64
	switch s {
	case StatSum:
		out = floats.Dot(vals, weights)
	case StatMin:
		out = floats.Min(vals)
	case StatMax:
		out = floats.Max(vals)
	case StatStdDev:
		if len(vals) < 2 {
			return nil
		}
		out = stat.StdDev(vals, nil)
	default:
		out = stat.Mean(vals, weights)
	}
	return &out
}
