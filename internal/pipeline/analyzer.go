package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Kind names an analysis.
type Kind string

const (
	KindWaterBalance    Kind = "water_balance"
	KindDrought         Kind = "drought"
	KindSpectralIndices Kind = "spectral_indices"
	KindLandCover       Kind = "land_cover"
)

// Kinds lists every analysis in a stable order.
var Kinds = []Kind{KindWaterBalance, KindDrought, KindSpectralIndices, KindLandCover}

// ParseKind maps a name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("unknown analysis %q", s)
	}
	return k, nil
}

// Per-analysis defaults.
const (
	waterBalanceScale = 5000.0
	spectralScale     = 10.0
	DefaultCloudLimit = 5.0
)

// RunInput is the immutable description of one analysis run.
type RunInput struct {
	Kind      Kind
	Region    *domain.Region
	Range     domain.DateRange
	Statistic domain.Statistic
	// NominalScale in metres; zero selects the analysis default.
	NominalScale float64
	// CloudLimit is the scene cloud percentage ceiling for optical analyses.
	CloudLimit float64
	// Year selects the land-cover classification; zero means the range start year.
	Year int
}

// Variables returns the variable set the run reads.
func (in RunInput) Variables() []domain.Variable {
	switch in.Kind {
	case KindWaterBalance:
		return []domain.Variable{domain.VarPrecipitation, domain.VarET, domain.VarPDSI}
	case KindDrought:
		return []domain.Variable{domain.VarPDSI}
	case KindSpectralIndices:
		return []domain.Variable{domain.VarSentinel2}
	case KindLandCover:
		return []domain.Variable{domain.VarLandCover}
	}
	return nil
}

// RunKey identifies a run result: ROI identity, date range, and variable set,
// plus the parameters that change the output.
type RunKey struct {
	RegionID     string
	Start        int64
	End          int64
	Variables    string
	Kind         Kind
	Statistic    domain.Statistic
	NominalScale float64
	CloudLimit   float64
	Year         int
}

// Key returns the cache key of a normalized input.
func (in RunInput) Key() RunKey {
	vars := make([]string, 0, 3)
	for _, v := range in.Variables() {
		vars = append(vars, string(v))
	}
	slices.Sort(vars)

	k := RunKey{
		Start:        in.Range.Start.UnixNano(),
		End:          in.Range.End.UnixNano(),
		Variables:    strings.Join(vars, ","),
		Kind:         in.Kind,
		Statistic:    in.Statistic,
		NominalScale: in.NominalScale,
		CloudLimit:   in.CloudLimit,
		Year:         in.Year,
	}
	if in.Region != nil {
		k.RegionID = in.Region.Identity()
	}
	return k
}

// Result is the output of a completed run.
type Result struct {
	RunID       string                       `json:"run_id"`
	Kind        Kind                         `json:"kind"`
	RegionID    string                       `json:"region_id"`
	Range       domain.DateRange             `json:"range"`
	Statistic   string                       `json:"statistic"`
	Variables   []domain.Variable            `json:"variables"`
	Rows        []domain.StatRow             `json:"rows"`
	Summary     *domain.Summary              `json:"summary,omitempty"`
	Drought     *domain.DroughtTable         `json:"drought,omitempty"`
	LandCover   []domain.ClassArea           `json:"land_cover,omitempty"`
	Gaps        []domain.EmptyCompositeError `json:"gaps,omitempty"`
	JoinSkipped []domain.PeriodKey           `json:"join_skipped,omitempty"`
	CompletedAt time.Time                    `json:"completed_at"`
	Cached      bool                         `json:"cached"`
}

// JoinGap returns the periods dropped by the cross-variable join as a
// JoinGapError, or nil when nothing was dropped.
func (r Result) JoinGap() error {
	if len(r.JoinSkipped) == 0 {
		return nil
	}
	return &domain.JoinGapError{Left: domain.VarPrecipitation, Right: domain.VarET, Skipped: r.JoinSkipped}
}

// Clone returns a deep copy of r, so cached results never share state with
// callers.
func (r Result) Clone() Result {
	r.Variables = slices.Clone(r.Variables)
	r.Rows = domain.CloneRows(r.Rows)
	r.LandCover = slices.Clone(r.LandCover)
	r.Gaps = slices.Clone(r.Gaps)
	r.JoinSkipped = slices.Clone(r.JoinSkipped)
	if r.Summary != nil {
		s := *r.Summary
		s.Bands = slices.Clone(s.Bands)
		if s.Excess != nil {
			e := *s.Excess
			s.Excess = &e
		}
		if s.Deficit != nil {
			d := *s.Deficit
			s.Deficit = &d
		}
		r.Summary = &s
	}
	if r.Drought != nil {
		d := *r.Drought
		d.Series = domain.CloneRows(d.Series)
		d.Monthly = slices.Clone(d.Monthly)
		for i := range d.Monthly {
			d.Monthly[i].StatRow = d.Monthly[i].StatRow.Clone()
		}
		r.Drought = &d
	}
	return r
}

// ErrResultNotFound is returned by result stores when no run matches.
var ErrResultNotFound = errors.New("run not found")

// RunSummary is one line of a stored run history.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Kind        string    `json:"kind"`
	RegionID    string    `json:"region_id"`
	Variables   []string  `json:"variables"`
	CompletedAt time.Time `json:"completed_at"`
}

// ResultLoader delivers completed results to an external sink.
type ResultLoader interface {
	Name() string
	LoadResult(ctx context.Context, r Result) error
}

// Options configures an Analyzer.
type Options struct {
	// Cache, when set, serves repeated runs without touching the backend.
	Cache *ResultCache
	// Loaders receive every freshly computed result.
	Loaders []ResultLoader
	// NominalScale overrides every analysis default when positive.
	NominalScale float64
}

// Analyzer runs analyses against a raster catalog.
type Analyzer struct {
	catalog      *Catalog
	cache        *ResultCache
	loaders      []ResultLoader
	nominalScale float64
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(catalog *Catalog, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Analyzer {
	return &Analyzer{
		catalog:      catalog,
		cache:        opts.Cache,
		loaders:      opts.Loaders,
		nominalScale: opts.NominalScale,
		logger:       logger,
		metrics:      metrics,
	}
}

// Warmup checks the raster backend and marks the analyzer ready.
func (a *Analyzer) Warmup(ctx context.Context) error {
	if err := a.catalog.Ping(ctx); err != nil {
		return fmt.Errorf("raster backend: %w", err)
	}
	a.ready.Store(true)
	return nil
}

// CheckReadiness returns nil once the backend has been reached, by Warmup or
// by a completed run, and fails again after a run exhausts its backend retries.
func (a *Analyzer) CheckReadiness(_ context.Context) error {
	if !a.ready.Load() {
		return errors.New("raster backend has not been reached yet")
	}
	return nil
}

// Normalize validates in and fills defaults. Run calls it; it is exported so
// callers can compute cache keys for the same input.
func (a *Analyzer) Normalize(in RunInput) (RunInput, error) {
	if in.Region == nil || in.Region.Len() == 0 {
		return RunInput{}, &domain.InvalidGeometryError{Reason: "no region of interest"}
	}
	if in.Range.Start.IsZero() || in.Range.End.IsZero() || in.Range.End.Before(in.Range.Start) {
		return RunInput{}, fmt.Errorf("%w: %s to %s", domain.ErrInvalidRange, in.Range.Start, in.Range.End)
	}
	if _, err := ParseKind(string(in.Kind)); err != nil {
		return RunInput{}, err
	}

	if in.NominalScale <= 0 {
		in.NominalScale = a.nominalScale
	}
	if in.NominalScale <= 0 {
		switch in.Kind {
		case KindWaterBalance:
			in.NominalScale = waterBalanceScale
		case KindSpectralIndices:
			in.NominalScale = spectralScale
		}
	}
	if in.Kind == KindSpectralIndices {
		if in.CloudLimit <= 0 {
			in.CloudLimit = DefaultCloudLimit
		}
	} else {
		in.CloudLimit = 0
	}
	if in.Kind == KindLandCover {
		if in.Year == 0 {
			in.Year = in.Range.Start.Year()
		}
	} else {
		in.Year = 0
	}
	return in, nil
}

// Run executes one analysis. A run either returns a complete result or an
// error; partial tables are never returned and failed or cancelled runs are
// never cached. Sink failures are logged and counted but do not fail the run.
func (a *Analyzer) Run(ctx context.Context, in RunInput) (Result, error) {
	in, err := a.Normalize(in)
	if err != nil {
		return Result{}, err
	}

	key := in.Key()
	if a.cache != nil {
		if r, ok := a.cache.Get(key); ok {
			a.metrics.ResultCache.WithLabelValues("hit").Inc()
			r.Cached = true
			return r, nil
		}
		a.metrics.ResultCache.WithLabelValues("miss").Inc()
	}

	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID, "kind", in.Kind)
	logger.Info("analysis started",
		"region", key.RegionID[:12],
		"features", in.Region.Len(),
		"start", in.Range.Start.Format(time.DateOnly),
		"end", in.Range.End.Format(time.DateOnly),
		"statistic", in.Statistic,
		"scale", in.NominalScale,
	)

	a.metrics.RunsInFlight.Inc()
	defer a.metrics.RunsInFlight.Dec()
	start := time.Now()

	res, err := a.execute(ctx, in, logger)
	a.metrics.RunDuration.WithLabelValues(string(in.Kind)).Observe(time.Since(start).Seconds())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		outcome := "error"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
		if errors.Is(err, domain.ErrBackendUnavailable) {
			a.ready.Store(false)
		}
		a.metrics.RunsTotal.WithLabelValues(string(in.Kind), outcome).Inc()
		logger.Error("analysis failed", "outcome", outcome, "error", err)
		return Result{}, err
	}

	res.RunID = runID
	res.Kind = in.Kind
	res.RegionID = key.RegionID
	res.Statistic = in.Statistic.String()
	res.Variables = in.Variables()
	res.CompletedAt = domain.Now()

	a.metrics.RunsTotal.WithLabelValues(string(in.Kind), "success").Inc()
	a.ready.Store(true)
	if a.cache != nil {
		a.cache.Put(key, res)
	}
	a.deliver(ctx, res, logger)

	logger.Info("analysis completed",
		"rows", len(res.Rows),
		"gaps", len(res.Gaps),
		"join_skipped", len(res.JoinSkipped),
		"duration", time.Since(start),
	)
	return res, nil
}

func (a *Analyzer) execute(ctx context.Context, in RunInput, logger *slog.Logger) (Result, error) {
	switch in.Kind {
	case KindWaterBalance:
		return a.waterBalance(ctx, in, logger)
	case KindDrought:
		return a.drought(ctx, in, logger)
	case KindSpectralIndices:
		return a.spectralIndices(ctx, in, logger)
	case KindLandCover:
		return a.landCover(ctx, in, logger)
	}
	return Result{}, fmt.Errorf("unknown analysis %q", in.Kind)
}

// waterBalance composites precipitation and evapotranspiration per month,
// joins them into P - ET, and adds the PDSI drought table.
func (a *Analyzer) waterBalance(ctx context.Context, in RunInput, logger *slog.Logger) (Result, error) {
	rc := domain.RunContext{Region: in.Region, Window: in.Range.MonthlyWindow(), NominalScale: in.NominalScale}
	res := Result{Range: rc.Window}
	if rc.Window.IsEmpty() {
		logger.Info("range holds no complete calendar year")
		return res, nil
	}

	var precip, et, pdsi []domain.Observation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		precip, err = a.collect(gctx, rc, domain.VarPrecipitation, false)
		return err
	})
	g.Go(func() (err error) {
		et, err = a.collect(gctx, rc, domain.VarET, false)
		return err
	})
	g.Go(func() (err error) {
		pdsi, err = a.collect(gctx, rc, domain.VarPDSI, true)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	pSeries, err := a.align(rc, domain.VarPrecipitation, precip, &res, logger)
	if err != nil {
		return Result{}, err
	}
	etSeries, err := a.align(rc, domain.VarET, et, &res, logger)
	if err != nil {
		return Result{}, err
	}

	records, skipped, err := domain.Join(pSeries.Composites, etSeries.Composites, domain.WaterBalance)
	if err != nil {
		return Result{}, err
	}
	if len(skipped) > 0 {
		res.JoinSkipped = skipped
		a.metrics.JoinSkipped.Add(float64(len(skipped)))
		logger.Warn("join dropped periods", "error", res.JoinGap())
	}

	images := make([]domain.CompositeImage, len(records))
	for i, r := range records {
		images[i] = r.Image()
	}
	if res.Rows, err = domain.Reduce(rc, images, in.Statistic); err != nil {
		return Result{}, err
	}
	res.Summary, err = summarize(res.Rows,
		[]domain.Band{domain.BandET, domain.BandPrecipitation, domain.BandWaterBalance},
		domain.BandWaterBalance)
	if err != nil {
		return Result{}, err
	}

	table, err := a.droughtTable(rc, pdsi, &res, logger)
	if err != nil {
		return Result{}, err
	}
	res.Drought = &table
	return res, nil
}

// drought builds the PDSI series and its monthly severity buckets.
func (a *Analyzer) drought(ctx context.Context, in RunInput, logger *slog.Logger) (Result, error) {
	rc := domain.RunContext{Region: in.Region, Window: in.Range.MonthlyWindow(), NominalScale: in.NominalScale}
	res := Result{Range: rc.Window}
	if rc.Window.IsEmpty() {
		logger.Info("range holds no complete calendar year")
		return res, nil
	}

	pdsi, err := a.collect(ctx, rc, domain.VarPDSI, true)
	if err != nil {
		return Result{}, err
	}
	table, err := a.droughtTable(rc, pdsi, &res, logger)
	if err != nil {
		return Result{}, err
	}
	res.Drought = &table
	res.Rows = table.MonthlyRows()
	res.Summary, err = summarize(res.Rows, []domain.Band{domain.BandPDSI}, domain.BandPDSI)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// droughtTable builds the PDSI table and records every month of the window
// without a PDSI observation as a gap on res.
func (a *Analyzer) droughtTable(rc domain.RunContext, pdsi []domain.Observation, res *Result, logger *slog.Logger) (domain.DroughtTable, error) {
	schema, err := domain.LookupSchema(domain.VarPDSI)
	if err != nil {
		return domain.DroughtTable{}, err
	}
	seen := make(map[domain.PeriodKey]bool, len(pdsi))
	for _, o := range pdsi {
		seen[domain.PeriodOf(o.Timestamp)] = true
	}
	var missing int
	for _, k := range rc.Window.Periods() {
		if !seen[k] {
			res.Gaps = append(res.Gaps, domain.EmptyCompositeError{Variable: domain.VarPDSI, Period: k})
			missing++
		}
	}
	if missing > 0 {
		a.metrics.CompositeGaps.WithLabelValues(string(domain.VarPDSI)).Add(float64(missing))
		logger.Debug("months without drought data", "variable", domain.VarPDSI, "periods", missing)
	}
	return domain.Drought(rc, pdsi, domain.BandPDSI, schema.ScaleFactor)
}

// spectralIndices reduces optical indices per cloud-free Sentinel-2 scene over
// the exact requested range.
func (a *Analyzer) spectralIndices(ctx context.Context, in RunInput, logger *slog.Logger) (Result, error) {
	rc := domain.RunContext{Region: in.Region, Window: in.Range, NominalScale: in.NominalScale}
	res := Result{Range: in.Range}
	if in.Range.IsEmpty() {
		return res, nil
	}

	schema, err := domain.LookupSchema(domain.VarSentinel2)
	if err != nil {
		return Result{}, err
	}
	stream, err := a.catalog.Query(Request{
		Variable: domain.VarSentinel2,
		Range:    in.Range,
		Bounds:   in.Region.Bounds(),
		Bands:    schema.AllBands(),
	})
	if err != nil {
		return Result{}, err
	}
	limit := in.CloudLimit
	obs, err := stream.Filter(func(ref domain.ObservationRef) bool {
		return domain.BelowCloudLimit(ref, limit)
	}).Collect(ctx)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("scenes below cloud limit", "scenes", len(obs), "limit", limit)

	masked := make([]domain.Observation, len(obs))
	for i, o := range obs {
		if masked[i], err = domain.MaskClouds(o); err != nil {
			return Result{}, fmt.Errorf("mask %s: %w", o.ID, err)
		}
	}
	images, err := domain.DeriveEach(domain.PerImage(rc, masked), domain.SpectralIndices)
	if err != nil {
		return Result{}, err
	}
	for i := range images {
		images[i].Bands = images[i].Bands.Select(domain.SpectralIndexBands...)
	}

	if res.Rows, err = domain.Reduce(rc, images, in.Statistic); err != nil {
		return Result{}, err
	}
	res.Summary, err = summarize(res.Rows, domain.SpectralIndexBands, domain.BandNDVI)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// landCover sums class areas of the classification for one year.
func (a *Analyzer) landCover(ctx context.Context, in RunInput, logger *slog.Logger) (Result, error) {
	year := domain.YearRange(in.Year)
	rc := domain.RunContext{Region: in.Region, Window: year, NominalScale: in.NominalScale}
	res := Result{Range: year}

	obs, err := a.collect(ctx, rc, domain.VarLandCover, false)
	if err != nil {
		return Result{}, err
	}
	images := domain.PerImage(rc, obs)
	if len(images) == 0 {
		gap := domain.EmptyCompositeError{Variable: domain.VarLandCover, Period: domain.PeriodOf(year.Start)}
		res.Gaps = append(res.Gaps, gap)
		a.metrics.CompositeGaps.WithLabelValues(string(domain.VarLandCover)).Inc()
		logger.Warn("no classification for year", "year", in.Year)
		return res, nil
	}

	if res.LandCover, err = domain.LandCoverArea(rc, images[0]); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (a *Analyzer) collect(ctx context.Context, rc domain.RunContext, v domain.Variable, raw bool) ([]domain.Observation, error) {
	stream, err := a.catalog.Query(Request{Variable: v, Range: rc.Window, Bounds: rc.Region.Bounds(), Raw: raw})
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx)
}

// align composites a variable per month and records the dropped periods on res.
func (a *Analyzer) align(rc domain.RunContext, v domain.Variable, obs []domain.Observation, res *Result, logger *slog.Logger) (domain.Series, error) {
	schema, err := domain.LookupSchema(v)
	if err != nil {
		return domain.Series{}, err
	}
	s, err := domain.AlignMonthly(rc, v, obs, schema.Combine)
	if err != nil {
		return domain.Series{}, fmt.Errorf("align %s: %w", v, err)
	}
	if len(s.Gaps) > 0 {
		res.Gaps = append(res.Gaps, s.Gaps...)
		a.metrics.CompositeGaps.WithLabelValues(string(v)).Add(float64(len(s.Gaps)))
		logger.Debug("empty periods dropped", "variable", v, "periods", len(s.Gaps))
	}
	return s, nil
}

// summarize returns nil for an empty table rather than an error, so empty
// period sets yield an empty result.
func summarize(rows []domain.StatRow, bands []domain.Band, indicator domain.Band) (*domain.Summary, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	s, err := domain.Summarize(rows, bands, indicator)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *Analyzer) deliver(ctx context.Context, res Result, logger *slog.Logger) {
	for _, l := range a.loaders {
		if err := l.LoadResult(ctx, res); err != nil {
			a.metrics.SinkErrors.WithLabelValues(l.Name()).Inc()
			logger.Error("deliver result failed", "sink", l.Name(), "error", err)
		}
	}
}
