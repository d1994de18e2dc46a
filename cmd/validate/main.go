// Command validate checks a NetCDF dataset directory before it is served:
// directory layout, band and property schema, monthly coverage over a span of
// years, and plausible pixel values in a sample of each collection.
//
// Usage:
//
//	go run ./cmd/validate -data ./data -year 2022 -years 2
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/fatih/color"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// valueRange bounds the scaled values of a band that are physically plausible.
type valueRange struct {
	band     domain.Band
	min, max float64
}

var plausible = map[domain.Variable]valueRange{
	domain.VarPrecipitation: {domain.BandPrecipitation, 0, 1000},
	domain.VarET:            {domain.BandET, 0, 500},
	domain.VarPDSI:          {domain.BandPDSI, -10, 10},
	domain.VarSentinel2:     {domain.BandNIR, 0, 1.5},
	domain.VarLandCover:     {domain.BandLandCover, 0, 100},
}

// monthly lists the variables every month of the span must have.
var monthly = []domain.Variable{domain.VarPrecipitation, domain.VarET, domain.VarPDSI}

func main() {
	dataDir := flag.String("data", "", "NetCDF dataset directory")
	year := flag.Int("year", 0, "first year that must be covered")
	years := flag.Int("years", 1, "number of years that must be covered")
	flag.Parse()

	if *dataDir == "" || *year == 0 || *years < 1 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(context.Background(), os.Stdout, *dataDir, *year, *years))
}

func run(ctx context.Context, w io.Writer, dir string, year, years int) int {
	pass := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "=== Dataset Validation ===")
	fmt.Fprintln(w)

	provider := netcdf.NewProvider(dir)
	infos, err := provider.Inspect(ctx)
	if err != nil {
		fmt.Fprintf(w, "FATAL: inspect %s: %v\n", dir, err)
		return 1
	}
	span := domain.DateRange{
		Start: domain.YearRange(year).Start,
		End:   domain.YearRange(year + years - 1).End,
	}

	phases := []*phase{
		validateLayout(infos),
		validateSchema(infos),
		validateCoverage(ctx, provider, span),
		validateValues(ctx, provider, span),
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := pass("PASS")
		if !p.passed() {
			status = fail(fmt.Sprintf("FAIL (%d errors)", len(p.errors)))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	total := 0
	for _, info := range infos {
		total += info.Observations
	}
	fmt.Fprintf(w, "Observations: %d across %d variables, %d-%d\n", total, len(infos), year, year+years-1)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

// validateLayout checks that every known variable has files on a single grid,
// that the water-balance inputs share a grid, and that no unknown directory
// is present.
func validateLayout(infos []netcdf.VariableInfo) *phase {
	p := &phase{name: "Phase 1: Directory layout"}
	byVar := make(map[domain.Variable]netcdf.VariableInfo, len(infos))
	for _, info := range infos {
		byVar[info.Variable] = info
		if !info.Known {
			p.errorf("%s: not a known variable", info.Variable)
			continue
		}
		if info.Files == 0 {
			p.errorf("%s: directory has no .nc files", info.Variable)
		}
		if len(info.Specs) > 1 {
			p.errorf("%s: files use %d different grids", info.Variable, len(info.Specs))
		}
	}
	for _, v := range domain.Variables() {
		if _, ok := byVar[v]; !ok {
			p.errorf("%s: missing directory", v)
		}
	}

	precip, et := byVar[domain.VarPrecipitation], byVar[domain.VarET]
	if len(precip.Specs) == 1 && len(et.Specs) == 1 && precip.Specs[0] != et.Specs[0] {
		p.errorf("%s and %s are on different grids and cannot be joined", domain.VarPrecipitation, domain.VarET)
	}
	return p
}

// validateSchema checks bands and scene properties against the variable schemas.
func validateSchema(infos []netcdf.VariableInfo) *phase {
	p := &phase{name: "Phase 2: Band schema"}
	for _, info := range infos {
		schema, err := domain.LookupSchema(info.Variable)
		if err != nil {
			continue
		}
		for _, b := range schema.AllBands() {
			if !slices.Contains(info.Bands, b) {
				p.errorf("%s: missing band %s", info.Variable, b)
			}
		}
		if info.Variable == domain.VarSentinel2 && !slices.Contains(info.Properties, domain.CloudPercentageProperty) {
			p.errorf("%s: missing scene property %s", info.Variable, domain.CloudPercentageProperty)
		}
	}
	return p
}

// validateCoverage checks that monthly inputs have every month of the span
// and the land-cover collection has every year.
func validateCoverage(ctx context.Context, provider *netcdf.Provider, span domain.DateRange) *phase {
	p := &phase{name: "Phase 3: Temporal coverage"}
	for _, v := range append(slices.Clone(monthly), domain.VarLandCover) {
		seen := make(map[domain.PeriodKey]bool)
		for ref, err := range provider.QueryCollection(ctx, domain.CollectionQuery{Variable: v, Range: span}) {
			if err != nil {
				p.errorf("%s: %v", v, err)
				break
			}
			k := domain.PeriodOf(ref.Timestamp)
			if v == domain.VarLandCover {
				k.Month = time.January
			}
			seen[k] = true
		}
		for _, k := range span.Periods() {
			if v == domain.VarLandCover && k.Month != time.January {
				continue
			}
			if !seen[k] {
				if v == domain.VarLandCover {
					p.errorf("%s: no classification for %d", v, k.Year)
				} else {
					p.errorf("%s: missing %s", v, k)
				}
			}
		}
	}
	return p
}

// validateValues reads the first observation of each variable and checks that
// it has valid pixels inside the plausible range.
func validateValues(ctx context.Context, provider *netcdf.Provider, span domain.DateRange) *phase {
	p := &phase{name: "Phase 4: Pixel values"}
	for _, v := range domain.Variables() {
		rng, ok := plausible[v]
		if !ok {
			continue
		}
		schema, err := domain.LookupSchema(v)
		if err != nil {
			continue
		}
		ref, err := firstObservation(ctx, provider, v, span)
		if err != nil {
			p.errorf("%s: %v", v, err)
			continue
		}
		if ref == nil {
			continue
		}
		g, err := provider.ReadBand(ctx, *ref, rng.band)
		if err != nil {
			p.errorf("%s %s: %v", v, ref.ID, err)
			continue
		}
		g = g.Scale(schema.ScaleFactor)
		if g.ValidCount() == 0 {
			p.errorf("%s %s: every %s pixel is masked", v, ref.ID, rng.band)
		}
		for _, x := range g.Values {
			if !math.IsNaN(x) && (x < rng.min || x > rng.max) {
				p.errorf("%s %s: %s value %g outside [%g, %g]", v, ref.ID, rng.band, x, rng.min, rng.max)
				break
			}
		}
	}
	return p
}

func firstObservation(ctx context.Context, provider *netcdf.Provider, v domain.Variable, span domain.DateRange) (*domain.ObservationRef, error) {
	next, stop := iter.Pull2(provider.QueryCollection(ctx, domain.CollectionQuery{Variable: v, Range: span}))
	defer stop()
	ref, err, ok := next()
	if !ok || err != nil {
		return nil, err
	}
	return &ref, nil
}
