package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEVI(t *testing.T) {
	assert.InDelta(t, 0.4615, EVI(0.4, 0.1, 0.05), 1e-4)

	t.Run("zero denominator is undefined", func(t *testing.T) {
		// 0.875 + 6*0 - 7.5*0.25 + 1 == 0
		assert.True(t, math.IsNaN(EVI(0.875, 0, 0.25)))
	})
}

func TestSAVI(t *testing.T) {
	assert.InDelta(t, 0.45, SAVI(0.4, 0.1), 1e-12)
	assert.True(t, math.IsNaN(SAVI(-0.25, -0.25)))
}

func TestSpectralIndices_UndefinedPixelsAreMasked(t *testing.T) {
	b := Bands{
		BandBlue: filled(0.05), BandGreen: filled(0.08), BandRed: filled(0.1),
		BandRedEdge1: filled(0.2), BandNIR: filled(0.4), BandSWIR1: filled(0.25),
	}
	b[BandBlue].Values[0], b[BandRed].Values[0], b[BandNIR].Values[0] = 0.25, 0, 0.875

	out, err := SpectralIndices(b)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[BandEVI].Values[0]))
	for _, v := range out[BandEVI].Values {
		assert.False(t, math.IsInf(v, 0))
	}

	rc := runContext(t, squareRegion(t), day(2023, time.January, 1), day(2024, time.January, 1))
	rows, err := Reduce(rc, []CompositeImage{image("a", day(2023, time.June, 1), out)}, StatMean)
	require.NoError(t, err)
	evi, ok := rows[0].Value(BandEVI)
	require.True(t, ok)
	assert.InDelta(t, 0.4615, evi, 1e-4, "the undefined pixel is left out of the mean")
}

func TestNormalizedDifference(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"vegetation", 0.5, 0.1, 0.4 / 0.6},
		{"water", 0.1, 0.3, -0.5},
		{"equal", 0.2, 0.2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizedDifference(tt.a, tt.b), 1e-12)
		})
	}

	t.Run("zero sum is undefined", func(t *testing.T) {
		assert.True(t, math.IsNaN(NormalizedDifference(0, 0)))
	})
}

func TestWaterBalance(t *testing.T) {
	p := filled(120)
	p.Values[3] = math.NaN()
	out, err := WaterBalance(Bands{BandPrecipitation: p, BandET: filled(45)})
	require.NoError(t, err)

	require.Equal(t, []Band{BandWaterBalance}, out.Names())
	assert.Equal(t, 75.0, out[BandWaterBalance].At(0, 0))
	assert.True(t, math.IsNaN(out[BandWaterBalance].Values[3]))

	_, err = WaterBalance(Bands{BandPrecipitation: p})
	require.ErrorIs(t, err, ErrUnknownBand)
}

func reflectance() Bands {
	return Bands{
		BandBlue:     filled(0.05),
		BandGreen:    filled(0.08),
		BandRed:      filled(0.1),
		BandRedEdge1: filled(0.2),
		BandNIR:      filled(0.4),
		BandSWIR1:    filled(0.25),
	}
}

func TestSpectralIndices(t *testing.T) {
	in := reflectance()
	in[BandNIR].Values[0] = math.NaN()

	out, err := SpectralIndices(in)
	require.NoError(t, err)

	assert.ElementsMatch(t, SpectralIndexBands, out.Names())
	assert.InDelta(t, 0.6, out[BandNDVI].At(1, 1), 1e-12)
	assert.InDelta(t, 0.4615, out[BandEVI].At(1, 1), 1e-4)
	assert.InDelta(t, 0.45, out[BandSAVI].At(1, 1), 1e-12)
	assert.InDelta(t, NormalizedDifference(0.08, 0.4), out[BandNDWI].At(1, 1), 1e-12)
	assert.InDelta(t, NormalizedDifference(0.05, 0.08), out[BandSPRI].At(1, 1), 1e-12)

	for _, b := range SpectralIndexBands {
		if b == BandMNDWI || b == BandNDPI || b == BandSPRI {
			continue
		}
		assert.True(t, math.IsNaN(out[b].Values[0]), "%s must stay masked where NIR is masked", b)
	}

	t.Run("missing band", func(t *testing.T) {
		in := reflectance()
		delete(in, BandSWIR1)
		_, err := SpectralIndices(in)
		require.ErrorIs(t, err, ErrUnknownBand)
	})
}
