package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spec = domain.GridSpec{MinLon: -48, MaxLat: -15, Dx: 0.5, Dy: 0.5, Cols: 2, Rows: 2}

func months(year int, skip ...time.Month) []time.Time {
	var out []time.Time
	for m := time.January; m <= time.December; m++ {
		skipped := false
		for _, s := range skip {
			skipped = skipped || s == m
		}
		if !skipped {
			out = append(out, time.Date(year, m, 15, 0, 0, 0, 0, time.UTC))
		}
	}
	return out
}

func write(t *testing.T, dir string, v domain.Variable, times []time.Time, bands map[domain.Band]float64, props map[string]float64) {
	t.Helper()
	f := netcdf.File{Variable: v, Spec: spec, Times: times, Bands: map[domain.Band][]domain.Grid{}}
	for b, value := range bands {
		for range times {
			f.Bands[b] = append(f.Bands[b], domain.FilledGrid(spec, value))
		}
	}
	if len(props) > 0 {
		f.Properties = map[string][]float64{}
		for name, value := range props {
			for range times {
				f.Properties[name] = append(f.Properties[name], value)
			}
		}
	}
	_, err := netcdf.WriteFile(dir, string(v)+".nc", f)
	require.NoError(t, err)
}

// completeDataset writes one valid year of every collection.
func completeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write(t, dir, domain.VarPrecipitation, months(2023), map[domain.Band]float64{domain.BandPrecipitation: 120}, nil)
	write(t, dir, domain.VarET, months(2023), map[domain.Band]float64{domain.BandET: 400}, nil)
	write(t, dir, domain.VarPDSI, months(2023), map[domain.Band]float64{domain.BandPDSI: -150}, nil)
	write(t, dir, domain.VarSentinel2, months(2023), map[domain.Band]float64{
		domain.BandBlue: 400, domain.BandGreen: 700, domain.BandRed: 500, domain.BandRedEdge1: 1200,
		domain.BandNIR: 3000, domain.BandSWIR1: 1800, domain.BandSCL: 4, domain.BandCloudProb: 0, domain.BandSnowProb: 0,
	}, map[string]float64{domain.CloudPercentageProperty: 2})
	write(t, dir, domain.VarLandCover, []time.Time{time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)},
		map[domain.Band]float64{domain.BandLandCover: 3}, nil)
	return dir
}

func TestRun_Passes(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), &out, completeDataset(t), 2023, 1)
	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "Observations: 49 across 5 variables, 2023-2023")
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, dir string)
		years   int
		want    string
	}{
		{
			name: "missing month",
			corrupt: func(t *testing.T, dir string) {
				write(t, dir, domain.VarET, months(2023, time.November), map[domain.Band]float64{domain.BandET: 400}, nil)
			},
			years: 1,
			want:  "mod16_et: missing 2023-11",
		},
		{
			name:  "uncovered year",
			years: 2,
			want:  "mapbiomas_landcover: no classification for 2024",
		},
		{
			name: "missing band",
			corrupt: func(t *testing.T, dir string) {
				write(t, dir, domain.VarPDSI, months(2023), map[domain.Band]float64{"pdsi_raw": -150}, nil)
			},
			years: 1,
			want:  "terraclimate_pdsi: missing band pdsi",
		},
		{
			name: "implausible value",
			corrupt: func(t *testing.T, dir string) {
				write(t, dir, domain.VarPDSI, months(2023), map[domain.Band]float64{domain.BandPDSI: -2500}, nil)
			},
			years: 1,
			want:  "pdsi value -25 outside [-10, 10]",
		},
		{
			name: "unknown directory",
			corrupt: func(t *testing.T, dir string) {
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o755))
			},
			years: 1,
			want:  "scratch: not a known variable",
		},
		{
			name: "missing collection",
			corrupt: func(t *testing.T, dir string) {
				require.NoError(t, os.RemoveAll(filepath.Join(dir, string(domain.VarSentinel2))))
			},
			years: 1,
			want:  "sentinel2_sr: missing directory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := completeDataset(t)
			if tt.corrupt != nil {
				tt.corrupt(t, dir)
			}
			var out bytes.Buffer
			code := run(context.Background(), &out, dir, 2023, tt.years)
			assert.Equal(t, 1, code)
			assert.Contains(t, out.String(), tt.want)
			assert.Contains(t, out.String(), "Validation FAILED.")
		})
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), &out, filepath.Join(t.TempDir(), "nope"), 2023, 1))
	assert.Contains(t, out.String(), "FATAL")
}
