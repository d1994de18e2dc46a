// Package netcdf serves raster collections from NetCDF files laid out as
// <dir>/<variable>/*.nc. Each file holds a time axis, lat and lon axes, one
// (time, lat, lon) variable per band, and optional per-time scene properties.
package netcdf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/couchcryptid/climate-series-service/internal/domain"
)

// Axis and attribute names.
const (
	dimTime = "time"
	dimLat  = "lat"
	dimLon  = "lon"

	attrUnits     = "units"
	attrFill      = "_FillValue"
	attrVariable  = "variable"
	attrLonRes    = "geospatial_lon_resolution"
	attrLatRes    = "geospatial_lat_resolution"
	defaultFill   = -9999.0
	defaultTUnits = "days since 1970-01-01"
)

var errLayout = errors.New("unsupported file layout")

// number covers the element types NetCDF classic files store.
type number interface {
	~int8 | ~uint8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func toFloats[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// vector converts a 1-D variable to float64.
func vector(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return s, nil
	case []float32:
		return toFloats(s), nil
	case []int64:
		return toFloats(s), nil
	case []int32:
		return toFloats(s), nil
	case []int16:
		return toFloats(s), nil
	case []int8:
		return toFloats(s), nil
	case []uint8:
		return toFloats(s), nil
	}
	return nil, fmt.Errorf("%w: 1-D values of type %T", errLayout, v)
}

func planeValues[T number](p [][]T, rows, cols int, flip bool, fill float64, hasFill bool) ([]float64, error) {
	if len(p) != rows {
		return nil, fmt.Errorf("%w: %d rows, want %d", domain.ErrGridMismatch, len(p), rows)
	}
	out := make([]float64, 0, rows*cols)
	for r := range rows {
		src := r
		if flip {
			src = rows - 1 - r
		}
		if len(p[src]) != cols {
			return nil, fmt.Errorf("%w: %d cols, want %d", domain.ErrGridMismatch, len(p[src]), cols)
		}
		for _, v := range p[src] {
			f := float64(v)
			if hasFill && f == fill {
				f = math.NaN()
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// plane extracts the first time slice of a (time, lat, lon) slice as
// north-up row-major values with fill values masked.
func plane(v any, rows, cols int, flip bool, fill float64, hasFill bool) ([]float64, error) {
	switch s := v.(type) {
	case [][][]float32:
		if len(s) == 1 {
			return planeValues(s[0], rows, cols, flip, fill, hasFill)
		}
	case [][][]float64:
		if len(s) == 1 {
			return planeValues(s[0], rows, cols, flip, fill, hasFill)
		}
	case [][][]int32:
		if len(s) == 1 {
			return planeValues(s[0], rows, cols, flip, fill, hasFill)
		}
	case [][][]int16:
		if len(s) == 1 {
			return planeValues(s[0], rows, cols, flip, fill, hasFill)
		}
	case [][][]int8:
		if len(s) == 1 {
			return planeValues(s[0], rows, cols, flip, fill, hasFill)
		}
	case [][][]uint8:
		if len(s) == 1 {
			return planeValues(s[0], rows, cols, flip, fill, hasFill)
		}
	default:
		return nil, fmt.Errorf("%w: band values of type %T", errLayout, v)
	}
	return nil, fmt.Errorf("%w: expected a single time slice", errLayout)
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case []float64:
		if len(n) > 0 {
			return n[0], true
		}
	case []float32:
		if len(n) > 0 {
			return float64(n[0]), true
		}
	}
	return 0, false
}

func attrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

var epochLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// timeDecoder parses CF time units such as "days since 1970-01-01".
func timeDecoder(units string) (func(float64) time.Time, error) {
	if units == "" {
		units = defaultTUnits
	}
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return nil, fmt.Errorf("%w: time units %q", errLayout, units)
	}

	var step time.Duration
	switch strings.ToLower(unit) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return nil, fmt.Errorf("%w: time unit %q", errLayout, unit)
	}

	since = strings.TrimSpace(since)
	for _, layout := range epochLayouts {
		if epoch, err := time.Parse(layout, since); err == nil {
			epoch = epoch.UTC()
			return func(v float64) time.Time {
				return epoch.Add(time.Duration(math.Round(v * float64(step))))
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: time epoch %q", errLayout, since)
}

// gridSpec derives the lattice from pixel-centre axes. The returned flag is
// set when latitudes ascend and rows must be flipped to be north-up.
func gridSpec(lat, lon []float64, attrs api.AttributeMap) (domain.GridSpec, bool, error) {
	if len(lat) == 0 || len(lon) == 0 {
		return domain.GridSpec{}, false, fmt.Errorf("%w: empty lat/lon axis", errLayout)
	}
	dx, ok := attrFloat(attrs, attrLonRes)
	if !ok {
		dx = spacing(lon)
	}
	dy, ok := attrFloat(attrs, attrLatRes)
	if !ok {
		dy = spacing(lat)
	}

	flip := len(lat) > 1 && lat[0] < lat[len(lat)-1]
	spec := domain.GridSpec{
		MinLon: math.Min(lon[0], lon[len(lon)-1]) - dx/2,
		MaxLat: math.Max(lat[0], lat[len(lat)-1]) + dy/2,
		Dx:     dx,
		Dy:     dy,
		Cols:   len(lon),
		Rows:   len(lat),
	}
	if err := spec.Validate(); err != nil {
		return domain.GridSpec{}, false, err
	}
	return spec, flip, nil
}

func spacing(axis []float64) float64 {
	if len(axis) < 2 {
		return 0
	}
	return math.Abs(axis[len(axis)-1]-axis[0]) / float64(len(axis)-1)
}
