package domain

import "math"

// CloudPercentageProperty is the per-image metadata field used to pre-filter
// Sentinel-2 scenes.
const CloudPercentageProperty = "CLOUDY_PIXEL_PERCENTAGE"

// Sentinel-2 scene classification codes and probability thresholds.
const (
	sclCloudShadow = 3
	sclCirrus      = 10
	maxCloudProb   = 5
	maxSnowProb    = 5
)

// BelowCloudLimit reports whether a scene's cloud percentage is strictly below
// limit. Scenes without the property are rejected.
func BelowCloudLimit(ref ObservationRef, limit float64) bool {
	pct, ok := ref.Properties[CloudPercentageProperty]
	return ok && pct < limit
}

// MaskClouds masks cloudy, snowy, shadowed, and cirrus pixels of a Sentinel-2
// observation using its QA bands, then drops the QA bands.
func MaskClouds(o Observation) (Observation, error) {
	cloud, err := o.Bands.Require(BandCloudProb)
	if err != nil {
		return Observation{}, err
	}
	snow, err := o.Bands.Require(BandSnowProb)
	if err != nil {
		return Observation{}, err
	}
	scl, err := o.Bands.Require(BandSCL)
	if err != nil {
		return Observation{}, err
	}
	if cloud.Spec != scl.Spec || snow.Spec != scl.Spec {
		return Observation{}, ErrGridMismatch
	}

	drop := func(i int) bool {
		c, s, class := cloud.Values[i], snow.Values[i], scl.Values[i]
		if math.IsNaN(c) || math.IsNaN(s) || math.IsNaN(class) {
			return true
		}
		return c >= maxCloudProb || s >= maxSnowProb || class == sclCloudShadow || class == sclCirrus
	}

	out := o
	out.Bands = make(Bands, len(o.Bands))
	for name, g := range o.Bands {
		if name == BandCloudProb || name == BandSnowProb || name == BandSCL {
			continue
		}
		if g.Spec != scl.Spec {
			return Observation{}, ErrGridMismatch
		}
		out.Bands[name] = g.MaskWhere(drop)
	}
	return out, nil
}
