package domain

import "math"

// EVI coefficients.
const (
	eviGain = 2.5
	eviC1   = 6.0
	eviC2   = 7.5
	eviL    = 1.0
)

// saviL is the SAVI soil brightness correction.
const saviL = 0.5

// EVI returns the enhanced vegetation index of reflectances in [0, 1], or NaN
// when the denominator is zero.
func EVI(nir, red, blue float64) float64 {
	d := nir + eviC1*red - eviC2*blue + eviL
	if d == 0 {
		return math.NaN()
	}
	return eviGain * ((nir - red) / d)
}

// SAVI returns the soil-adjusted vegetation index, or NaN when the
// denominator is zero.
func SAVI(nir, red float64) float64 {
	d := nir + red + saviL
	if d == 0 {
		return math.NaN()
	}
	return ((nir - red) / d) * (1 + saviL)
}

// NormalizedDifference returns (a-b)/(a+b), or NaN when the sum is zero.
func NormalizedDifference(a, b float64) float64 {
	if a+b == 0 {
		return math.NaN()
	}
	return (a - b) / (a + b)
}

// WaterBalance derives precipitation minus evapotranspiration.
func WaterBalance(b Bands) (Bands, error) {
	p, err := b.Require(BandPrecipitation)
	if err != nil {
		return nil, err
	}
	et, err := b.Require(BandET)
	if err != nil {
		return nil, err
	}
	wb, err := ZipWith(p, et, func(x, y float64) float64 { return x - y })
	if err != nil {
		return nil, err
	}
	return Bands{BandWaterBalance: wb}, nil
}

// normalizedPairs lists the normalized-difference indices as (index, a, b).
var normalizedPairs = []struct {
	index Band
	a, b  Band
}{
	{BandNDVI, BandNIR, BandRed},
	{BandNDRE, BandNIR, BandRedEdge1},
	{BandNDWI, BandGreen, BandNIR},
	{BandMNDWI, BandGreen, BandSWIR1},
	{BandNDMI, BandNIR, BandSWIR1},
	{BandNDPI, BandSWIR1, BandGreen},
	{BandSPRI, BandBlue, BandGreen},
}

// SpectralIndices derives the optical index set from scaled Sentinel-2
// reflectance bands.
func SpectralIndices(b Bands) (Bands, error) {
	out := make(Bands, len(SpectralIndexBands))
	for _, p := range normalizedPairs {
		a, err := b.Require(p.a)
		if err != nil {
			return nil, err
		}
		c, err := b.Require(p.b)
		if err != nil {
			return nil, err
		}
		g, err := ZipWith(a, c, NormalizedDifference)
		if err != nil {
			return nil, err
		}
		out[p.index] = g
	}

	nir, err := b.Require(BandNIR)
	if err != nil {
		return nil, err
	}
	red, err := b.Require(BandRed)
	if err != nil {
		return nil, err
	}
	blue, err := b.Require(BandBlue)
	if err != nil {
		return nil, err
	}
	if out[BandSAVI], err = ZipWith(nir, red, SAVI); err != nil {
		return nil, err
	}
	if blue.Spec != nir.Spec || red.Spec != nir.Spec {
		return nil, ErrGridMismatch
	}
	evi := make([]float64, len(nir.Values))
	for i := range evi {
		n, r, bl := nir.Values[i], red.Values[i], blue.Values[i]
		if math.IsNaN(n) || math.IsNaN(r) || math.IsNaN(bl) {
			evi[i] = math.NaN()
			continue
		}
		evi[i] = EVI(n, r, bl)
	}
	out[BandEVI] = Grid{Spec: nir.Spec, Values: evi}
	return out, nil
}
