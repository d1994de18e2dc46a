package domain

import (
	"fmt"
	"slices"
)

// Band names a raster band. Every band a provider may serve is declared here
// and validated per variable schema before any backend call.
type Band string

// Source bands.
const (
	BandPrecipitation Band = "precipitation"
	BandET            Band = "ET"
	BandPDSI          Band = "pdsi"
	BandLandCover     Band = "classification"

	BandBlue     Band = "B2"
	BandGreen    Band = "B3"
	BandRed      Band = "B4"
	BandRedEdge1 Band = "B5"
	BandNIR      Band = "B8"
	BandSWIR1    Band = "B11"

	// Sentinel-2 quality bands, never scaled.
	BandSCL       Band = "SCL"
	BandCloudProb Band = "MSK_CLDPRB"
	BandSnowProb  Band = "MSK_SNWPRB"
)

// Derived bands.
const (
	BandWaterBalance Band = "water_balance"
	BandNDVI         Band = "ndvi"
	BandNDRE         Band = "ndre"
	BandEVI          Band = "evi"
	BandNDWI         Band = "ndwi"
	BandMNDWI        Band = "mndwi"
	BandNDMI         Band = "ndmi"
	BandNDPI         Band = "ndpi"
	BandSPRI         Band = "spri"
	BandSAVI         Band = "savi"
)

// SpectralIndexBands lists the derived spectral indices in output order.
var SpectralIndexBands = []Band{
	BandNDVI, BandNDRE, BandEVI, BandNDWI, BandMNDWI, BandNDMI, BandNDPI, BandSPRI, BandSAVI,
}

// Bands maps band names to grids for one image.
type Bands map[Band]Grid

// Names returns the band names in sorted order.
func (b Bands) Names() []Band {
	names := make([]Band, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Require returns the named grid or an ErrUnknownBand error.
func (b Bands) Require(name Band) (Grid, error) {
	g, ok := b[name]
	if !ok {
		return Grid{}, fmt.Errorf("%w: %s not present", ErrUnknownBand, name)
	}
	return g, nil
}

// Merge returns a new map with the bands of b and other. A name present in
// both is an ErrBandCollision.
func (b Bands) Merge(other Bands) (Bands, error) {
	out := make(Bands, len(b)+len(other))
	for name, g := range b {
		out[name] = g
	}
	for name, g := range other {
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrBandCollision, name)
		}
		out[name] = g
	}
	return out, nil
}

// Select keeps only the named bands.
func (b Bands) Select(names ...Band) Bands {
	out := make(Bands, len(names))
	for _, name := range names {
		if g, ok := b[name]; ok {
			out[name] = g
		}
	}
	return out
}
