// Command genraster writes a synthetic NetCDF dataset in the layout read by
// the netcdf provider, plus a two-feature GeoJSON region over it. Values
// follow a southern-hemisphere seasonal cycle with seeded noise, so runs are
// reproducible.
//
// Usage:
//
//	go run ./cmd/genraster -out data -year 2022 -years 2
//	go run ./cmd/eoctl run -r data/region.geojson -d data -k water_balance --start 2022-01-01 --end 2024-01-01
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/domain"
)

type options struct {
	out   string
	year  int
	years int
	spec  domain.GridSpec
	seed  uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.out, "out", "", "output dataset directory")
	flag.IntVar(&o.year, "year", 2023, "first year to generate")
	flag.IntVar(&o.years, "years", 1, "number of years")
	flag.Float64Var(&o.spec.MinLon, "min-lon", -48, "western edge in degrees")
	flag.Float64Var(&o.spec.MaxLat, "max-lat", -15, "northern edge in degrees")
	res := flag.Float64("res", 0.01, "pixel size in degrees")
	flag.IntVar(&o.spec.Cols, "cols", 40, "grid columns")
	flag.IntVar(&o.spec.Rows, "rows", 40, "grid rows")
	flag.Uint64Var(&o.seed, "seed", 1, "noise seed")
	flag.Parse()

	if o.out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	o.spec.Dx, o.spec.Dy = *res, *res
	return generate(o)
}

func generate(o options) error {
	if err := o.spec.Validate(); err != nil {
		return err
	}
	if o.years < 1 {
		return fmt.Errorf("years must be positive, got %d", o.years)
	}
	g := &generator{spec: o.spec, rng: rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))}

	for y := o.year; y < o.year+o.years; y++ {
		files := []struct {
			name string
			file netcdf.File
		}{
			{fmt.Sprintf("chirps_%d.nc", y), g.precipitation(y)},
			{fmt.Sprintf("mod16_%d.nc", y), g.evapotranspiration(y)},
			{fmt.Sprintf("terraclimate_%d.nc", y), g.pdsi(y)},
			{fmt.Sprintf("s2_%d.nc", y), g.sentinel2(y)},
			{fmt.Sprintf("mapbiomas_%d.nc", y), g.landCover(y)},
		}
		for _, f := range files {
			path, err := netcdf.WriteFile(o.out, f.name, f.file)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			log.Printf("%s: %d time slices", path, len(f.file.Times))
		}
	}

	path, err := writeRegion(o.out, o.spec)
	if err != nil {
		return err
	}
	log.Printf("%s: 2 features", path)
	return nil
}

type generator struct {
	spec domain.GridSpec
	rng  *rand.Rand
}

// season is +1 in January (wet) and -1 in July (dry).
func season(t time.Time) float64 {
	return math.Cos(2 * math.Pi * float64(t.YearDay()-1) / 365)
}

// field fills a grid from base plus a west-to-east gradient and noise.
func (g *generator) field(base, gradient, noise float64, clamp bool) domain.Grid {
	out := domain.FilledGrid(g.spec, 0)
	for r := 0; r < g.spec.Rows; r++ {
		for c := 0; c < g.spec.Cols; c++ {
			v := base + gradient*float64(c)/float64(g.spec.Cols) + noise*g.rng.NormFloat64()
			if clamp && v < 0 {
				v = 0
			}
			out.Values[r*g.spec.Cols+c] = v
		}
	}
	return out
}

func every(year, firstDay, step int) []time.Time {
	var out []time.Time
	for t := time.Date(year, time.January, firstDay, 0, 0, 0, 0, time.UTC); t.Year() == year; t = t.AddDate(0, 0, step) {
		out = append(out, t)
	}
	return out
}

// precipitation writes six pentads per month in millimetres.
func (g *generator) precipitation(year int) netcdf.File {
	f := netcdf.File{Variable: domain.VarPrecipitation, Spec: g.spec, Bands: map[domain.Band][]domain.Grid{}}
	for m := time.January; m <= time.December; m++ {
		for d := 1; d <= 26; d += 5 {
			t := time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
			f.Times = append(f.Times, t)
			f.Bands[domain.BandPrecipitation] = append(f.Bands[domain.BandPrecipitation],
				g.field(20+20*season(t), 8, 6, true))
		}
	}
	return f
}

// evapotranspiration writes 8-day composites in tenths of a millimetre.
func (g *generator) evapotranspiration(year int) netcdf.File {
	f := netcdf.File{Variable: domain.VarET, Spec: g.spec, Bands: map[domain.Band][]domain.Grid{}}
	for _, t := range every(year, 1, 8) {
		f.Times = append(f.Times, t)
		f.Bands[domain.BandET] = append(f.Bands[domain.BandET], g.field(250+80*season(t), 40, 20, true))
	}
	return f
}

// pdsi writes monthly Palmer index values in hundredths.
func (g *generator) pdsi(year int) netcdf.File {
	f := netcdf.File{Variable: domain.VarPDSI, Spec: g.spec, Bands: map[domain.Band][]domain.Grid{}}
	for m := time.January; m <= time.December; m++ {
		t := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		f.Times = append(f.Times, t)
		f.Bands[domain.BandPDSI] = append(f.Bands[domain.BandPDSI], g.field(250*season(t)-50, -100, 30, false))
	}
	return f
}

// sentinel2 writes a scene every five days. Every fourth scene is cloudy; the
// others carry a few shadow pixels so masking has work to do.
func (g *generator) sentinel2(year int) netcdf.File {
	f := netcdf.File{
		Variable:   domain.VarSentinel2,
		Spec:       g.spec,
		Bands:      map[domain.Band][]domain.Grid{},
		Properties: map[string][]float64{domain.CloudPercentageProperty: nil},
	}
	reflectance := []struct {
		band      domain.Band
		base, amp float64
	}{
		{domain.BandBlue, 400, -50},
		{domain.BandGreen, 700, 50},
		{domain.BandRed, 500, -200},
		{domain.BandRedEdge1, 1200, 150},
		{domain.BandNIR, 3000, 1000},
		{domain.BandSWIR1, 1800, -300},
	}

	for i, t := range every(year, 3, 5) {
		f.Times = append(f.Times, t)
		s := season(t)
		for _, r := range reflectance {
			f.Bands[r.band] = append(f.Bands[r.band], g.field(r.base+r.amp*s, 0, 30, true))
		}

		scl := domain.FilledGrid(g.spec, 4)
		cloud := domain.FilledGrid(g.spec, 0)
		snow := domain.FilledGrid(g.spec, 0)
		pct := 1 + 2*g.rng.Float64()
		if i%4 == 3 {
			pct = 60
			for p := range cloud.Values {
				if p%10 < 6 {
					cloud.Values[p] = 80
					scl.Values[p] = 9
				}
			}
		} else {
			for p := range scl.Values {
				if g.rng.Float64() < 0.02 {
					scl.Values[p] = 3
				}
			}
		}
		f.Bands[domain.BandSCL] = append(f.Bands[domain.BandSCL], scl)
		f.Bands[domain.BandCloudProb] = append(f.Bands[domain.BandCloudProb], cloud)
		f.Bands[domain.BandSnowProb] = append(f.Bands[domain.BandSnowProb], snow)
		f.Properties[domain.CloudPercentageProperty] = append(f.Properties[domain.CloudPercentageProperty], pct)
	}
	return f
}

// MapBiomas collection codes.
const (
	classForest  = 3
	classPasture = 15
	classWater   = 33
	classSoybean = 39
)

// landCover writes one classification per year: forest in the west, pasture
// in the middle, soybean in the east, and a pond in the centre. The soybean
// edge moves with the year so consecutive years differ.
func (g *generator) landCover(year int) netcdf.File {
	grid := domain.FilledGrid(g.spec, classPasture)
	third := g.spec.Cols / 3
	east := 2*third - (year % 3)
	for r := 0; r < g.spec.Rows; r++ {
		for c := 0; c < g.spec.Cols; c++ {
			switch {
			case c < third:
				grid.Values[r*g.spec.Cols+c] = classForest
			case c >= east:
				grid.Values[r*g.spec.Cols+c] = classSoybean
			}
		}
	}
	grid.Values[(g.spec.Rows/2)*g.spec.Cols+g.spec.Cols/2] = classWater
	return netcdf.File{
		Variable: domain.VarLandCover,
		Spec:     g.spec,
		Times:    []time.Time{time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)},
		Bands:    map[domain.Band][]domain.Grid{domain.BandLandCover: {grid}},
	}
}

// writeRegion stores the north and south halves of the grid, inset by half a
// pixel, as a FeatureCollection.
func writeRegion(dir string, spec domain.GridSpec) (string, error) {
	b := spec.Bounds()
	inX, inY := spec.Dx/2, spec.Dy/2
	midY := (b.Min.Y + b.Max.Y) / 2
	rect := func(minX, minY, maxX, maxY float64) [][][2]float64 {
		return [][][2]float64{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
	}
	feature := func(id string, coords [][][2]float64) map[string]any {
		return map[string]any{
			"type":       "Feature",
			"id":         id,
			"properties": map[string]any{"name": id},
			"geometry":   map[string]any{"type": "Polygon", "coordinates": coords},
		}
	}
	doc := map[string]any{
		"type": "FeatureCollection",
		"features": []any{
			feature("north", rect(b.Min.X+inX, midY, b.Max.X-inX, b.Max.Y-inY)),
			feature("south", rect(b.Min.X+inX, b.Min.Y+inY, b.Max.X-inX, midY)),
		},
	}
	body, err := sonic.Marshal(doc)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "region.geojson")
	return path, os.WriteFile(path, body, 0o644)
}
