package netcdf

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spec = domain.GridSpec{MinLon: -47.5, MaxLat: -15, Dx: 0.25, Dy: 0.25, Cols: 3, Rows: 2}

func day(m time.Month, d int) time.Time {
	return time.Date(2023, m, d, 0, 0, 0, 0, time.UTC)
}

func ramp(offset float64) domain.Grid {
	g := domain.FilledGrid(spec, 0)
	for i := range g.Values {
		g.Values[i] = offset + float64(i)
	}
	return g
}

func collect(t *testing.T, p *Provider, q domain.CollectionQuery) []domain.ObservationRef {
	t.Helper()
	var refs []domain.ObservationRef
	for ref, err := range p.QueryCollection(context.Background(), q) {
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	return refs
}

func writeSentinel(t *testing.T, dir string) {
	t.Helper()
	masked := ramp(100)
	masked.Values[4] = math.NaN()
	_, err := WriteFile(dir, "s2_2023.nc", File{
		Variable: domain.VarSentinel2,
		Spec:     spec,
		Times:    []time.Time{day(time.March, 3), day(time.March, 13), day(time.April, 2)},
		Bands: map[domain.Band][]domain.Grid{
			domain.BandRed: {ramp(0), masked, ramp(200)},
			domain.BandSCL: {domain.FilledGrid(spec, 4), domain.FilledGrid(spec, 3), domain.FilledGrid(spec, 10)},
		},
		Properties: map[string][]float64{domain.CloudPercentageProperty: {1.5, 40, 3}},
	})
	require.NoError(t, err)
}

func TestProvider_QueryAndRead(t *testing.T) {
	dir := t.TempDir()
	writeSentinel(t, dir)
	p := NewProvider(dir)
	require.NoError(t, p.Ping(context.Background()))

	march, err := domain.NewDateRange(day(time.March, 1), day(time.April, 1))
	require.NoError(t, err)
	refs := collect(t, p, domain.CollectionQuery{Variable: domain.VarSentinel2, Range: march})

	require.Len(t, refs, 2)
	assert.Equal(t, "s2_2023.nc#0", refs[0].ID)
	assert.Equal(t, day(time.March, 3), refs[0].Timestamp)
	assert.Equal(t, domain.VarSentinel2, refs[0].Variable)
	assert.Equal(t, 40.0, refs[1].Properties[domain.CloudPercentageProperty])

	g, err := p.ReadBand(context.Background(), refs[1], domain.BandRed)
	require.NoError(t, err)
	assert.Equal(t, spec, g.Spec)
	assert.Equal(t, 100.0, g.At(0, 0))
	assert.Equal(t, 105.0, g.At(1, 2))
	assert.True(t, math.IsNaN(g.At(1, 1)), "fill value reads back as masked")

	scl, err := p.ReadBand(context.Background(), refs[0], domain.BandSCL)
	require.NoError(t, err)
	assert.Equal(t, 4.0, scl.At(0, 0))
}

func TestProvider_QueryFilters(t *testing.T) {
	dir := t.TempDir()
	writeSentinel(t, dir)
	p := NewProvider(dir)
	year := domain.YearRange(2023)

	t.Run("bounds outside the lattice", func(t *testing.T) {
		far := &geom.Bounds{Min: geom.Point{X: 10, Y: 10}, Max: geom.Point{X: 11, Y: 11}}
		assert.Empty(t, collect(t, p, domain.CollectionQuery{Variable: domain.VarSentinel2, Range: year, Bounds: far}))
	})

	t.Run("bounds overlapping the lattice", func(t *testing.T) {
		near := &geom.Bounds{Min: geom.Point{X: -47.4, Y: -15.4}, Max: geom.Point{X: -47.3, Y: -15.1}}
		assert.Len(t, collect(t, p, domain.CollectionQuery{Variable: domain.VarSentinel2, Range: year, Bounds: near}), 3)
	})

	t.Run("variable without a directory", func(t *testing.T) {
		assert.Empty(t, collect(t, p, domain.CollectionQuery{Variable: domain.VarET, Range: year}))
	})

	t.Run("early stop", func(t *testing.T) {
		n := 0
		for range p.QueryCollection(context.Background(), domain.CollectionQuery{Variable: domain.VarSentinel2, Range: year}) {
			n++
			break
		}
		assert.Equal(t, 1, n)
	})
}

func TestProvider_ReadBand_Errors(t *testing.T) {
	dir := t.TempDir()
	writeSentinel(t, dir)
	p := NewProvider(dir)
	ref := domain.ObservationRef{Variable: domain.VarSentinel2, ID: "s2_2023.nc#0"}

	_, err := p.ReadBand(context.Background(), ref, domain.BandNIR)
	require.ErrorIs(t, err, domain.ErrUnknownBand)

	tests := []struct {
		name string
		id   string
	}{
		{"missing file", "s2_2020.nc#0"},
		{"index out of range", "s2_2023.nc#9"},
		{"malformed id", "s2_2023.nc"},
		{"path traversal", "../s2_2023.nc#0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ReadBand(context.Background(), domain.ObservationRef{Variable: domain.VarSentinel2, ID: tt.id}, domain.BandRed)
			require.ErrorIs(t, err, domain.ErrRejected)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ReadBand(ctx, ref, domain.BandRed)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProvider_HeaderCacheRefreshes(t *testing.T) {
	dir := t.TempDir()
	writeSentinel(t, dir)
	p := NewProvider(dir)
	year := domain.YearRange(2023)
	require.Len(t, collect(t, p, domain.CollectionQuery{Variable: domain.VarSentinel2, Range: year}), 3)

	_, err := WriteFile(dir, "s2_2023.nc", File{
		Variable: domain.VarSentinel2,
		Spec:     spec,
		Times:    []time.Time{day(time.May, 1)},
		Bands:    map[domain.Band][]domain.Grid{domain.BandRed: {ramp(0)}},
	})
	require.NoError(t, err)
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, string(domain.VarSentinel2), "s2_2023.nc"), later, later))

	refs := collect(t, p, domain.CollectionQuery{Variable: domain.VarSentinel2, Range: year})
	require.Len(t, refs, 1)
	assert.Equal(t, day(time.May, 1), refs[0].Timestamp)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	writeSentinel(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o755))

	infos, err := NewProvider(dir).Inspect(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)

	s2 := infos[1]
	assert.Equal(t, domain.VarSentinel2, s2.Variable)
	assert.True(t, s2.Known)
	assert.Equal(t, 1, s2.Files)
	assert.Equal(t, 3, s2.Observations)
	assert.Equal(t, day(time.March, 3), s2.First)
	assert.Equal(t, day(time.April, 2), s2.Last)
	assert.Equal(t, []domain.Band{domain.BandRed, domain.BandSCL}, s2.Bands)
	assert.Equal(t, []string{domain.CloudPercentageProperty}, s2.Properties)
	assert.Equal(t, []domain.GridSpec{spec}, s2.Specs)

	assert.Equal(t, domain.Variable("scratch"), infos[0].Variable)
	assert.False(t, infos[0].Known)
}

func TestWriteFile_Validation(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteFile(dir, "x.nc", File{Variable: domain.VarET, Spec: spec})
	require.Error(t, err)

	_, err = WriteFile(dir, "x.nc", File{
		Variable: domain.VarET,
		Spec:     spec,
		Times:    []time.Time{day(time.May, 1)},
		Bands:    map[domain.Band][]domain.Grid{domain.BandET: {domain.FilledGrid(domain.GridSpec{Dx: 1, Dy: 1, Cols: 1, Rows: 1}, 0)}},
	})
	require.ErrorIs(t, err, domain.ErrGridMismatch)
}

func TestTimeDecoder(t *testing.T) {
	tests := []struct {
		units string
		v     float64
		want  time.Time
	}{
		{"days since 1970-01-01", 19358, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"hours since 1900-01-01 00:00:00", 24, time.Date(1900, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{"seconds since 2023-06-01T00:00:00Z", 90, time.Date(2023, time.June, 1, 0, 1, 30, 0, time.UTC)},
		{"", 1.5, time.Date(1970, time.January, 2, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			decode, err := timeDecoder(tt.units)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decode(tt.v))
		})
	}

	for _, bad := range []string{"fortnights since 1970-01-01", "days after 1970-01-01", "days since yesterday"} {
		_, err := timeDecoder(bad)
		assert.ErrorIs(t, err, errLayout, bad)
	}
}

func TestGridSpec_AscendingLatitudes(t *testing.T) {
	got, flip, err := gridSpec([]float64{-15.375, -15.125}, []float64{-47.375, -47.125, -46.875}, nil)
	require.NoError(t, err)
	assert.True(t, flip)
	assert.Equal(t, spec, got)

	values, err := plane([][][]float32{{{1, 2, 3}, {4, 5, 6}}}, 2, 3, flip, defaultFill, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6, 1, 2, 3}, values)
}
