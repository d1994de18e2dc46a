package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Variable names a raster collection.
type Variable string

const (
	VarPrecipitation Variable = "chirps_precipitation"
	VarET            Variable = "mod16_et"
	VarPDSI          Variable = "terraclimate_pdsi"
	VarSentinel2     Variable = "sentinel2_sr"
	VarLandCover     Variable = "mapbiomas_landcover"
)

// CombineRule folds the observations of one period into a composite.
type CombineRule int

const (
	// CombineIdentity keeps the earliest observation of the period.
	CombineIdentity CombineRule = iota
	// CombineSum adds pixel values, for accumulated flux variables.
	CombineSum
	// CombineMean averages pixel values.
	CombineMean
)

func (r CombineRule) String() string {
	switch r {
	case CombineSum:
		return "sum"
	case CombineMean:
		return "mean"
	default:
		return "identity"
	}
}

// Schema describes the bands and ingestion rules of a variable.
type Schema struct {
	Variable    Variable
	Bands       []Band
	QABands     []Band // served unscaled
	ScaleFactor float64
	Combine     CombineRule
	NativeScale float64 // metres
}

var schemas = map[Variable]Schema{
	VarPrecipitation: {
		Variable:    VarPrecipitation,
		Bands:       []Band{BandPrecipitation},
		ScaleFactor: 1,
		Combine:     CombineSum,
		NativeScale: 5566,
	},
	VarET: {
		Variable:    VarET,
		Bands:       []Band{BandET},
		ScaleFactor: 0.1,
		Combine:     CombineSum,
		NativeScale: 500,
	},
	VarPDSI: {
		Variable:    VarPDSI,
		Bands:       []Band{BandPDSI},
		ScaleFactor: 0.01,
		Combine:     CombineIdentity,
		NativeScale: 4638,
	},
	VarSentinel2: {
		Variable:    VarSentinel2,
		Bands:       []Band{BandBlue, BandGreen, BandRed, BandRedEdge1, BandNIR, BandSWIR1},
		QABands:     []Band{BandSCL, BandCloudProb, BandSnowProb},
		ScaleFactor: 1.0 / 10000,
		Combine:     CombineIdentity,
		NativeScale: 10,
	},
	VarLandCover: {
		Variable:    VarLandCover,
		Bands:       []Band{BandLandCover},
		ScaleFactor: 1,
		Combine:     CombineIdentity,
		NativeScale: 30,
	},
}

// LookupSchema returns the schema registered for v.
func LookupSchema(v Variable) (Schema, error) {
	s, ok := schemas[v]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownVariable, v)
	}
	return s, nil
}

// Variables lists every registered variable in sorted order.
func Variables() []Variable {
	out := make([]Variable, 0, len(schemas))
	for v := range schemas {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// HasBand reports whether the variable serves band b.
func (s Schema) HasBand(b Band) bool {
	return slices.Contains(s.Bands, b) || slices.Contains(s.QABands, b)
}

// Scaled reports whether ingestion scaling applies to band b.
func (s Schema) Scaled(b Band) bool {
	return slices.Contains(s.Bands, b)
}

// AllBands returns data bands followed by QA bands.
func (s Schema) AllBands() []Band {
	return append(slices.Clone(s.Bands), s.QABands...)
}

// ValidateBands rejects any band the variable does not serve.
func (s Schema) ValidateBands(bands []Band) error {
	var unknown []string
	for _, b := range bands {
		if !s.HasBand(b) {
			unknown = append(unknown, string(b))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s does not serve %s", ErrUnknownBand, s.Variable, strings.Join(unknown, ", "))
	}
	return nil
}
