package netcdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	gonetcdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/domain"
)

// header is the decoded axis and metadata section of one file.
type header struct {
	path    string
	modTime time.Time
	spec    domain.GridSpec
	flip    bool
	times   []time.Time
	bands   []domain.Band
	props   map[string][]float64
}

// Provider reads raster collections from a directory tree of NetCDF files.
// Headers are cached per file and re-read when the file changes.
type Provider struct {
	dir string

	mu      sync.Mutex
	headers map[string]*header
}

// NewProvider returns a provider rooted at dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir, headers: make(map[string]*header)}
}

// Ping checks that the data directory is readable.
func (p *Provider) Ping(_ context.Context) error {
	info, err := os.Stat(p.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", p.dir)
	}
	return nil
}

// QueryCollection enumerates the time slices of every file of q.Variable that
// fall in q.Range and whose extent overlaps q.Bounds. Observation IDs are
// "<file>#<time index>".
func (p *Provider) QueryCollection(ctx context.Context, q domain.CollectionQuery) iter.Seq2[domain.ObservationRef, error] {
	return func(yield func(domain.ObservationRef, error) bool) {
		files, err := p.files(q.Variable)
		if err != nil {
			yield(domain.ObservationRef{}, err)
			return
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				yield(domain.ObservationRef{}, err)
				return
			}
			h, err := p.header(path)
			if err != nil {
				yield(domain.ObservationRef{}, fmt.Errorf("%s: %w", filepath.Base(path), err))
				return
			}
			if q.Bounds != nil && !h.spec.Bounds().Overlaps(q.Bounds) {
				continue
			}
			for i, ts := range h.times {
				if !q.Range.Contains(ts) {
					continue
				}
				ref := domain.ObservationRef{
					Variable:   q.Variable,
					ID:         filepath.Base(path) + "#" + strconv.Itoa(i),
					Timestamp:  ts,
					Properties: h.properties(i),
				}
				if !yield(ref, nil) {
					return
				}
			}
		}
	}
}

// ReadBand reads one band of one time slice.
func (p *Provider) ReadBand(ctx context.Context, ref domain.ObservationRef, band domain.Band) (domain.Grid, error) {
	if err := ctx.Err(); err != nil {
		return domain.Grid{}, err
	}
	name, idx, err := parseID(ref.ID)
	if err != nil {
		return domain.Grid{}, err
	}
	path := filepath.Join(p.dir, string(ref.Variable), name)
	h, err := p.header(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Grid{}, fmt.Errorf("%w: %s", domain.ErrRejected, err)
		}
		return domain.Grid{}, err
	}
	if idx >= len(h.times) {
		return domain.Grid{}, fmt.Errorf("%w: %s has %d time slices", domain.ErrRejected, name, len(h.times))
	}
	if !slices.Contains(h.bands, band) {
		return domain.Grid{}, fmt.Errorf("%w: %s not in %s", domain.ErrUnknownBand, band, name)
	}

	nc, err := gonetcdf.Open(path)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer nc.Close()

	vg, err := nc.GetVarGetter(string(band))
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%s %s: %w", name, band, err)
	}
	slice, err := vg.GetSlice(int64(idx), int64(idx)+1)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%s %s[%d]: %w", name, band, idx, err)
	}
	fill, hasFill := attrFloat(vg.Attributes(), attrFill)
	values, err := plane(slice, h.spec.Rows, h.spec.Cols, h.flip, fill, hasFill)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("%s %s: %w", name, band, err)
	}
	return domain.NewGrid(h.spec, values)
}

func parseID(id string) (string, int, error) {
	name, idx, ok := strings.Cut(id, "#")
	if !ok {
		return "", 0, fmt.Errorf("%w: malformed observation id %q", domain.ErrRejected, id)
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || name != filepath.Base(name) {
		return "", 0, fmt.Errorf("%w: malformed observation id %q", domain.ErrRejected, id)
	}
	return name, i, nil
}

// files lists the NetCDF files of a variable in name order. A variable
// without a directory has no observations.
func (p *Provider) files(v domain.Variable) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.dir, string(v)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".nc" {
			continue
		}
		out = append(out, filepath.Join(p.dir, string(v), e.Name()))
	}
	return out, nil
}

func (p *Provider) header(path string) (*header, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	h, ok := p.headers[path]
	p.mu.Unlock()
	if ok && h.modTime.Equal(info.ModTime()) {
		return h, nil
	}

	h, err = readHeader(path)
	if err != nil {
		return nil, err
	}
	h.modTime = info.ModTime()

	p.mu.Lock()
	p.headers[path] = h
	p.mu.Unlock()
	return h, nil
}

func readHeader(path string) (*header, error) {
	nc, err := gonetcdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	axis := func(name string) ([]float64, string, error) {
		v, err := nc.GetVariable(name)
		if err != nil {
			return nil, "", fmt.Errorf("%w: axis %s: %v", errLayout, name, err)
		}
		vals, err := vector(v.Values)
		return vals, attrString(v.Attributes, attrUnits), err
	}

	lat, _, err := axis(dimLat)
	if err != nil {
		return nil, err
	}
	lon, _, err := axis(dimLon)
	if err != nil {
		return nil, err
	}
	raw, units, err := axis(dimTime)
	if err != nil {
		return nil, err
	}
	decode, err := timeDecoder(units)
	if err != nil {
		return nil, err
	}

	h := &header{path: path, props: make(map[string][]float64)}
	if h.spec, h.flip, err = gridSpec(lat, lon, nc.Attributes()); err != nil {
		return nil, err
	}
	h.times = make([]time.Time, len(raw))
	for i, v := range raw {
		h.times[i] = decode(v)
	}

	for _, name := range nc.ListVariables() {
		if name == dimTime || name == dimLat || name == dimLon {
			continue
		}
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		dims := vg.Dimensions()
		switch {
		case slices.Equal(dims, []string{dimTime, dimLat, dimLon}):
			h.bands = append(h.bands, domain.Band(name))
		case slices.Equal(dims, []string{dimTime}):
			vals, err := vg.Values()
			if err != nil {
				return nil, err
			}
			prop, err := vector(vals)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			if len(prop) == len(h.times) {
				h.props[name] = prop
			}
		}
	}
	slices.Sort(h.bands)
	return h, nil
}

func (h *header) properties(i int) map[string]float64 {
	if len(h.props) == 0 {
		return nil
	}
	out := make(map[string]float64, len(h.props))
	for name, vals := range h.props {
		out[name] = vals[i]
	}
	return out
}
