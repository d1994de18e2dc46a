package domain

import (
	"math"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/require"
)

// testSpec is a 4x4 lattice of 0.5° pixels covering lon 0..2, lat 0..2.
var testSpec = GridSpec{MinLon: 0, MaxLat: 2, Dx: 0.5, Dy: 0.5, Cols: 4, Rows: 4}

func rect(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY}, {X: minX, Y: minY},
	}}
}

// squareRegion is a single feature covering the whole test lattice.
func squareRegion(t *testing.T) *Region {
	t.Helper()
	r, err := NewRegion([]Feature{{ID: "farm", Geometry: rect(0, 0, 2, 2)}})
	require.NoError(t, err)
	return r
}

// halvesRegion splits the test lattice into a west and an east feature.
func halvesRegion(t *testing.T) *Region {
	t.Helper()
	r, err := NewRegion([]Feature{
		{ID: "west", Geometry: rect(0, 0, 1, 2)},
		{ID: "east", Geometry: rect(1, 0, 2, 2)},
	})
	require.NoError(t, err)
	return r
}

func filled(v float64) Grid { return FilledGrid(testSpec, v) }

func obsAt(v Variable, id string, ts time.Time, bands Bands) Observation {
	return Observation{ObservationRef: ObservationRef{Variable: v, ID: id, Timestamp: ts}, Bands: bands}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 { return &v }

func nan() float64 { return math.NaN() }

func runContext(t *testing.T, r *Region, start, end time.Time) RunContext {
	t.Helper()
	dr, err := NewDateRange(start, end)
	require.NoError(t, err)
	return RunContext{Region: r, Window: dr.MonthlyWindow()}
}
