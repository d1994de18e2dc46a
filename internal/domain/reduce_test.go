package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexed() Grid {
	g := filled(0)
	for i := range g.Values {
		g.Values[i] = float64(i)
	}
	return g
}

func image(id string, date time.Time, bands Bands) CompositeImage {
	return CompositeImage{ID: id, Period: PeriodOf(date), Date: date, Bands: bands, Contributors: 1}
}

func TestReduce_Statistics(t *testing.T) {
	rc := runContext(t, halvesRegion(t), day(2023, time.January, 1), day(2024, time.January, 1))
	img := image("a", day(2023, time.June, 1), Bands{BandNDVI: indexed()})

	tests := []struct {
		stat       Statistic
		west, east float64
	}{
		{StatMean, 6.5, 8.5},
		{StatSum, 52, 68},
		{StatMin, 0, 2},
		{StatMax, 13, 15},
		{StatCount, 8, 8},
		{StatStdDev, math.Sqrt(162.0 / 7), math.Sqrt(162.0 / 7)},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			rows, err := Reduce(rc, []CompositeImage{img}, tt.stat)
			require.NoError(t, err)
			require.Len(t, rows, 2)

			assert.Equal(t, "west", rows[0].FeatureID)
			assert.Equal(t, "east", rows[1].FeatureID)
			west, ok := rows[0].Value(BandNDVI)
			require.True(t, ok)
			assert.InDelta(t, tt.west, west, 1e-9)
			east, ok := rows[1].Value(BandNDVI)
			require.True(t, ok)
			assert.InDelta(t, tt.east, east, 1e-9)
		})
	}
}

func TestReduce_RowCountAndOrder(t *testing.T) {
	rc := runContext(t, halvesRegion(t), day(2023, time.January, 1), day(2024, time.January, 1))
	images := []CompositeImage{
		image("late", day(2023, time.August, 1), Bands{BandNDVI: filled(1)}),
		image("early", day(2023, time.February, 1), Bands{BandNDVI: filled(2)}),
		image("mid", day(2023, time.May, 1), Bands{BandNDVI: filled(3)}),
	}

	rows, err := Reduce(rc, images, StatMean)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	var ids []string
	for _, r := range rows {
		ids = append(ids, r.ImageID+"/"+r.FeatureID)
	}
	assert.Equal(t, []string{
		"early/west", "early/east",
		"mid/west", "mid/east",
		"late/west", "late/east",
	}, ids)
	assert.Equal(t, PeriodKey{2023, time.February}, rows[0].Period)
}

func TestReduce_FeatureWithoutPixels(t *testing.T) {
	r, err := NewRegion([]Feature{
		{ID: "inside", Geometry: rect(0, 0, 2, 2)},
		{ID: "elsewhere", Geometry: rect(10, 10, 11, 11)},
	})
	require.NoError(t, err)
	rc := runContext(t, r, day(2023, time.January, 1), day(2024, time.January, 1))
	img := image("a", day(2023, time.June, 1), Bands{BandNDVI: filled(1)})

	rows, err := Reduce(rc, []CompositeImage{img}, StatMean)
	require.NoError(t, err)
	require.Len(t, rows, 2, "every feature gets a row")
	_, ok := rows[1].Value(BandNDVI)
	assert.False(t, ok)
	assert.Nil(t, rows[1].Values[BandNDVI])

	rows, err = Reduce(rc, []CompositeImage{img}, StatCount)
	require.NoError(t, err)
	count, ok := rows[1].Value(BandNDVI)
	require.True(t, ok)
	assert.Zero(t, count)
}

func TestReduce_NominalScaleCoarsens(t *testing.T) {
	rc := runContext(t, halvesRegion(t), day(2023, time.January, 1), day(2024, time.January, 1))
	rc.NominalScale = 2 * testSpec.PixelSize()
	img := image("a", day(2023, time.June, 1), Bands{BandNDVI: indexed()})

	rows, err := Reduce(rc, []CompositeImage{img}, StatCount)
	require.NoError(t, err)
	n, _ := rows[0].Value(BandNDVI)
	assert.Equal(t, 2.0, n)

	rows, err = Reduce(rc, []CompositeImage{img}, StatMean)
	require.NoError(t, err)
	mean, _ := rows[0].Value(BandNDVI)
	assert.InDelta(t, 6.5, mean, 1e-9)
}

func TestReduce_FeatureSmallerThanNominalCell(t *testing.T) {
	spec := GridSpec{MinLon: -47, MaxLat: -15, Dx: 0.0045, Dy: 0.0045, Cols: 40, Rows: 40}
	r, err := NewRegion([]Feature{{ID: "plot", Geometry: rect(-46.99, -15.04, -46.98, -15.03)}})
	require.NoError(t, err)
	rc := runContext(t, r, day(2023, time.January, 1), day(2024, time.January, 1))
	rc.NominalScale = 5000
	require.Equal(t, 10, spec.BlockFactor(rc.NominalScale))

	g := r.Clip(FilledGrid(spec, 3))
	require.Equal(t, 4, g.ValidCount())
	img := image("a", day(2023, time.June, 1), Bands{BandET: g})

	tests := []struct {
		stat Statistic
		want float64
	}{
		{StatMean, 3},
		{StatMin, 3},
		{StatMax, 3},
		{StatCount, 1},
		{StatSum, 3 * 4.0 / 100},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			rows, err := Reduce(rc, []CompositeImage{img}, tt.stat)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			v, ok := rows[0].Value(BandET)
			require.True(t, ok, "a feature inside one cell keeps its pixels")
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestReduce_PartialCellsAreWeighted(t *testing.T) {
	// Rows 0-1, cols 0-2: one full 2x2 cell (0, 1, 4, 5) and half of the next (2, 6).
	r, err := NewRegion([]Feature{{ID: "strip", Geometry: rect(0, 1, 1.5, 2)}})
	require.NoError(t, err)
	rc := runContext(t, r, day(2023, time.January, 1), day(2024, time.January, 1))
	rc.NominalScale = 2 * testSpec.PixelSize()
	img := image("a", day(2023, time.June, 1), Bands{BandNDVI: indexed()})

	tests := []struct {
		stat Statistic
		want float64
	}{
		{StatMean, (2.5*1 + 4*0.5) / 1.5},
		{StatSum, 2.5*1 + 4*0.5},
		{StatCount, 2},
		{StatMin, 2.5},
		{StatMax, 4},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			rows, err := Reduce(rc, []CompositeImage{img}, tt.stat)
			require.NoError(t, err)
			v, ok := rows[0].Value(BandNDVI)
			require.True(t, ok)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestReduce_StdDevNeedsTwoPixels(t *testing.T) {
	r, err := NewRegion([]Feature{{ID: "tiny", Geometry: rect(0.1, 1.6, 0.4, 1.9)}})
	require.NoError(t, err)
	rc := runContext(t, r, day(2023, time.January, 1), day(2024, time.January, 1))

	rows, err := Reduce(rc, []CompositeImage{image("a", day(2023, time.June, 1), Bands{BandNDVI: filled(1)})}, StatStdDev)
	require.NoError(t, err)
	assert.Nil(t, rows[0].Values[BandNDVI])
}

func TestParseStatistic(t *testing.T) {
	for _, s := range []Statistic{StatMean, StatSum, StatMin, StatMax, StatCount, StatStdDev} {
		got, err := ParseStatistic(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStatistic("")
	require.NoError(t, err)
	assert.Equal(t, StatMean, got)

	_, err = ParseStatistic("median")
	assert.Error(t, err)
}
