package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/observability"
	"github.com/ctessum/geom"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// RasterProvider is a raster collection backend. QueryCollection must be
// lazy and safe to enumerate more than once; ReadBand returns the band on the
// image's native lattice with masked pixels as NaN and no scaling applied.
type RasterProvider interface {
	QueryCollection(ctx context.Context, q domain.CollectionQuery) iter.Seq2[domain.ObservationRef, error]
	ReadBand(ctx context.Context, ref domain.ObservationRef, band domain.Band) (domain.Grid, error)
}

// Pinger is implemented by providers that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog fronts a RasterProvider with schema validation, retries, and a
// concurrency limit shared by every stream it hands out.
type Catalog struct {
	provider RasterProvider
	retry    *retrier
	sem      chan struct{}
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewCatalog creates a Catalog allowing at most concurrency backend calls at once.
func NewCatalog(p RasterProvider, policy RetryPolicy, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Catalog {
	c := &Catalog{
		provider: p,
		sem:      make(chan struct{}, max(concurrency, 1)),
		logger:   logger,
		metrics:  metrics,
	}
	c.retry = &retrier{
		policy: policy,
		clock:  clockwork.NewRealClock(),
		onTry: func(op string, err error, elapsed time.Duration) {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			metrics.BackendRequests.WithLabelValues(op, outcome).Inc()
			metrics.BackendDuration.WithLabelValues(op).Observe(elapsed.Seconds())
		},
		onWait: func(op string) {
			metrics.BackendRetries.WithLabelValues(op).Inc()
		},
	}
	return c
}

// Ping checks the provider, if it supports health checks.
func (c *Catalog) Ping(ctx context.Context) error {
	if p, ok := c.provider.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Request describes the observations a stage needs.
type Request struct {
	Variable domain.Variable
	Range    domain.DateRange
	Bounds   *geom.Bounds
	// Bands defaults to the variable's data bands.
	Bands []domain.Band
	// Raw skips ingestion scaling, for stages that de-scale themselves.
	Raw bool
}

// Query validates req against the variable schema and returns a lazy stream.
// No backend call happens until the stream is collected.
func (c *Catalog) Query(req Request) (*Stream, error) {
	schema, err := domain.LookupSchema(req.Variable)
	if err != nil {
		return nil, err
	}
	bands := req.Bands
	if len(bands) == 0 {
		bands = schema.Bands
	}
	if err := schema.ValidateBands(bands); err != nil {
		return nil, err
	}
	if req.Range.IsEmpty() {
		return nil, fmt.Errorf("%w: empty range for %s", domain.ErrInvalidRange, req.Variable)
	}
	return &Stream{catalog: c, req: req, schema: schema, bands: slices.Clone(bands)}, nil
}

// Stream is a filtered, not yet materialized query.
type Stream struct {
	catalog *Catalog
	req     Request
	schema  domain.Schema
	bands   []domain.Band
	filters []func(domain.ObservationRef) bool
}

// Filter returns a stream that also drops references for which keep is false.
// The receiver is left unchanged.
func (s *Stream) Filter(keep func(domain.ObservationRef) bool) *Stream {
	next := *s
	next.filters = append(slices.Clone(s.filters), keep)
	return &next
}

// Refs enumerates the matching references in timestamp order without
// reading any band.
func (s *Stream) Refs(ctx context.Context) ([]domain.ObservationRef, error) {
	c := s.catalog
	q := domain.CollectionQuery{Variable: s.req.Variable, Range: s.req.Range, Bounds: s.req.Bounds}

	var refs []domain.ObservationRef
	err := c.retry.do(ctx, "query", s.req.Variable, func(ctx context.Context) error {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		defer c.release()

		refs = refs[:0]
		for ref, err := range c.provider.QueryCollection(ctx, q) {
			if err != nil {
				return err
			}
			if ref.Variable == "" {
				ref.Variable = s.req.Variable
			}
			if s.keep(ref) {
				refs = append(refs, ref)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.req.Variable, err)
	}

	slices.SortStableFunc(refs, func(a, b domain.ObservationRef) int { return a.Timestamp.Compare(b.Timestamp) })
	return refs, nil
}

func (s *Stream) keep(ref domain.ObservationRef) bool {
	if !s.req.Range.Contains(ref.Timestamp) {
		return false
	}
	for _, f := range s.filters {
		if !f(ref) {
			return false
		}
	}
	return true
}

// Collect materializes the stream: every requested band of every matching
// reference is read concurrently, then data bands are scaled by the schema
// factor unless the request is raw. Either all observations are returned or
// the first error, with outstanding reads cancelled.
func (s *Stream) Collect(ctx context.Context) ([]domain.Observation, error) {
	refs, err := s.Refs(ctx)
	if err != nil {
		return nil, err
	}

	grids := make([][]domain.Grid, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cap(s.catalog.sem))
	for i, ref := range refs {
		grids[i] = make([]domain.Grid, len(s.bands))
		for j, band := range s.bands {
			g.Go(func() error {
				grid, err := s.catalog.read(gctx, ref, band)
				if err != nil {
					return fmt.Errorf("read %s %s: %w", ref.ID, band, err)
				}
				if !s.req.Raw && s.schema.Scaled(band) && s.schema.ScaleFactor != 1 {
					grid = grid.Scale(s.schema.ScaleFactor)
				}
				grids[i][j] = grid
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	obs := make([]domain.Observation, len(refs))
	for i, ref := range refs {
		bands := make(domain.Bands, len(s.bands))
		for j, band := range s.bands {
			bands[band] = grids[i][j]
		}
		obs[i] = domain.Observation{ObservationRef: ref, Bands: bands}
	}
	s.catalog.metrics.Observations.WithLabelValues(string(s.req.Variable)).Add(float64(len(obs)))
	s.catalog.logger.Debug("collection materialized",
		"variable", s.req.Variable,
		"observations", len(obs),
		"bands", len(s.bands),
	)
	return obs, nil
}

func (c *Catalog) read(ctx context.Context, ref domain.ObservationRef, band domain.Band) (domain.Grid, error) {
	var grid domain.Grid
	err := c.retry.do(ctx, "read", ref.Variable, func(ctx context.Context) error {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		defer c.release()

		g, err := c.provider.ReadBand(ctx, ref, band)
		if err != nil {
			return err
		}
		grid, err = domain.NewGrid(g.Spec, g.Values)
		return err
	})
	return grid, err
}

func (c *Catalog) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) release() { <-c.sem }
