package netcdf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	gonetcdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/couchcryptid/climate-series-service/internal/domain"
)

// File is an in-memory collection file: a stack of grids on one lattice.
type File struct {
	Variable domain.Variable
	Spec     domain.GridSpec
	Times    []time.Time
	// Bands holds one grid per time slice for every band.
	Bands map[domain.Band][]domain.Grid
	// Properties holds one value per time slice, e.g. scene cloud cover.
	Properties map[string][]float64
}

var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteFile stores f as NetCDF classic under dir/<variable>/name. NaN pixels
// are written as the fill value.
func WriteFile(dir, name string, f File) (string, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, string(f.Variable), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	// The writer refuses to overwrite.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	cw, err := gonetcdf.OpenWriter(path, gonetcdf.KindCDF)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.write(cw); err != nil {
		_ = cw.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := cw.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func (f File) validate() error {
	if err := f.Spec.Validate(); err != nil {
		return err
	}
	if len(f.Times) == 0 {
		return errors.New("no time slices")
	}
	for band, grids := range f.Bands {
		if len(grids) != len(f.Times) {
			return fmt.Errorf("band %s: %d grids for %d time slices", band, len(grids), len(f.Times))
		}
		for _, g := range grids {
			if g.Spec != f.Spec || len(g.Values) != f.Spec.Len() {
				return fmt.Errorf("%w: band %s", domain.ErrGridMismatch, band)
			}
		}
	}
	for name, vals := range f.Properties {
		if len(vals) != len(f.Times) {
			return fmt.Errorf("property %s: %d values for %d time slices", name, len(vals), len(f.Times))
		}
	}
	return nil
}

func (f File) write(cw api.Writer) error {
	global, err := util.NewOrderedMap(
		[]string{attrVariable, attrLonRes, attrLatRes},
		map[string]any{attrVariable: string(f.Variable), attrLonRes: f.Spec.Dx, attrLatRes: f.Spec.Dy},
	)
	if err != nil {
		return err
	}
	if err := cw.AddGlobalAttrs(global); err != nil {
		return err
	}

	days := make([]float64, len(f.Times))
	for i, t := range f.Times {
		days[i] = t.UTC().Sub(epoch).Hours() / 24
	}
	lat := make([]float64, f.Spec.Rows)
	for r := range lat {
		lat[r] = f.Spec.Center(r, 0).Y
	}
	lon := make([]float64, f.Spec.Cols)
	for c := range lon {
		lon[c] = f.Spec.Center(0, c).X
	}

	if err := addVar(cw, dimTime, days, []string{dimTime}, attrUnits, defaultTUnits); err != nil {
		return err
	}
	if err := addVar(cw, dimLat, lat, []string{dimLat}, attrUnits, "degrees_north"); err != nil {
		return err
	}
	if err := addVar(cw, dimLon, lon, []string{dimLon}, attrUnits, "degrees_east"); err != nil {
		return err
	}

	bands := make([]domain.Band, 0, len(f.Bands))
	for b := range f.Bands {
		bands = append(bands, b)
	}
	slices.Sort(bands)
	for _, b := range bands {
		cube := make([][][]float32, len(f.Times))
		for t, g := range f.Bands[b] {
			cube[t] = rows32(g)
		}
		if err := addVar(cw, string(b), cube, []string{dimTime, dimLat, dimLon}, attrFill, float32(defaultFill)); err != nil {
			return err
		}
	}

	props := make([]string, 0, len(f.Properties))
	for name := range f.Properties {
		props = append(props, name)
	}
	slices.Sort(props)
	for _, name := range props {
		if err := addVar(cw, name, f.Properties[name], []string{dimTime}, "", nil); err != nil {
			return err
		}
	}
	return nil
}

func addVar(cw api.Writer, name string, values any, dims []string, attr string, attrValue any) error {
	keys, vals := []string{}, map[string]any{}
	if attr != "" {
		keys, vals[attr] = append(keys, attr), attrValue
	}
	attrs, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return err
	}
	return cw.AddVar(name, api.Variable{Values: values, Dimensions: dims, Attributes: attrs})
}

func rows32(g domain.Grid) [][]float32 {
	out := make([][]float32, g.Spec.Rows)
	for r := range out {
		out[r] = make([]float32, g.Spec.Cols)
		for c := range out[r] {
			v := g.At(r, c)
			if math.IsNaN(v) {
				v = defaultFill
			}
			out[r][c] = float32(v)
		}
	}
	return out
}
