package domain

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// metresPerDegree is the length of one degree of arc on the WGS84 equator.
const metresPerDegree = 111319.49079327357

// GridSpec describes a regular lon/lat lattice. Row 0 is the northern edge.
type GridSpec struct {
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	Dx     float64 `json:"dx"`
	Dy     float64 `json:"dy"`
	Cols   int     `json:"cols"`
	Rows   int     `json:"rows"`
}

// Validate checks that the lattice has a positive size and resolution.
func (s GridSpec) Validate() error {
	if s.Cols <= 0 || s.Rows <= 0 {
		return fmt.Errorf("%w: %dx%d lattice", ErrGridMismatch, s.Cols, s.Rows)
	}
	if s.Dx <= 0 || s.Dy <= 0 || math.IsNaN(s.Dx) || math.IsNaN(s.Dy) {
		return fmt.Errorf("%w: resolution %gx%g", ErrGridMismatch, s.Dx, s.Dy)
	}
	return nil
}

// Len is the number of pixels.
func (s GridSpec) Len() int { return s.Cols * s.Rows }

// Center returns the centre of pixel (row, col).
func (s GridSpec) Center(row, col int) geom.Point {
	return geom.Point{
		X: s.MinLon + (float64(col)+0.5)*s.Dx,
		Y: s.MaxLat - (float64(row)+0.5)*s.Dy,
	}
}

// Bounds returns the lattice extent.
func (s GridSpec) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: s.MinLon, Y: s.MaxLat - float64(s.Rows)*s.Dy},
		Max: geom.Point{X: s.MinLon + float64(s.Cols)*s.Dx, Y: s.MaxLat},
	}
}

// PixelSize returns the north-south pixel size in metres.
func (s GridSpec) PixelSize() float64 {
	return s.Dy * metresPerDegree
}

// PixelAreaHectares returns the area of a pixel in the given row, using a
// spherical approximation.
func (s GridSpec) PixelAreaHectares(row int) float64 {
	lat := s.MaxLat - (float64(row)+0.5)*s.Dy
	w := s.Dx * metresPerDegree * math.Cos(lat*math.Pi/180)
	h := s.Dy * metresPerDegree
	return w * h / 10000
}

// BlockFactor returns how many native pixels per side fit in nominalScale metres.
func (s GridSpec) BlockFactor(nominalScale float64) int {
	native := s.PixelSize()
	if nominalScale <= native || native <= 0 {
		return 1
	}
	return int(math.Round(nominalScale / native))
}

// Grid is a single-band raster. Values are row-major; NaN marks a masked pixel.
type Grid struct {
	Spec   GridSpec
	Values []float64
}

// NewGrid validates that values cover spec exactly.
func NewGrid(spec GridSpec, values []float64) (Grid, error) {
	if err := spec.Validate(); err != nil {
		return Grid{}, err
	}
	if len(values) != spec.Len() {
		return Grid{}, fmt.Errorf("%w: %d values for %dx%d lattice", ErrGridMismatch, len(values), spec.Cols, spec.Rows)
	}
	return Grid{Spec: spec, Values: values}, nil
}

// FilledGrid returns a grid with every pixel set to v.
func FilledGrid(spec GridSpec, v float64) Grid {
	values := make([]float64, spec.Len())
	for i := range values {
		values[i] = v
	}
	return Grid{Spec: spec, Values: values}
}

// At returns the value at (row, col).
func (g Grid) At(row, col int) float64 {
	return g.Values[row*g.Spec.Cols+col]
}

// ValidCount returns the number of unmasked pixels.
func (g Grid) ValidCount() int {
	n := 0
	for _, v := range g.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Map applies fn to every unmasked pixel.
func (g Grid) Map(fn func(float64) float64) Grid {
	out := make([]float64, len(g.Values))
	for i, v := range g.Values {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = fn(v)
	}
	return Grid{Spec: g.Spec, Values: out}
}

// Scale multiplies every unmasked pixel by f.
func (g Grid) Scale(f float64) Grid {
	if f == 1 {
		return g
	}
	return g.Map(func(v float64) float64 { return v * f })
}

// MaskWhere masks every pixel for which drop returns true.
func (g Grid) MaskWhere(drop func(i int) bool) Grid {
	out := make([]float64, len(g.Values))
	for i, v := range g.Values {
		if drop(i) {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return Grid{Spec: g.Spec, Values: out}
}

// ZipWith combines two grids on the same lattice pixel by pixel. A pixel
// masked in either input stays masked.
func ZipWith(a, b Grid, fn func(x, y float64) float64) (Grid, error) {
	if a.Spec != b.Spec {
		return Grid{}, fmt.Errorf("%w: %+v vs %+v", ErrGridMismatch, a.Spec, b.Spec)
	}
	out := make([]float64, len(a.Values))
	for i := range a.Values {
		x, y := a.Values[i], b.Values[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(x, y)
	}
	return Grid{Spec: a.Spec, Values: out}, nil
}
