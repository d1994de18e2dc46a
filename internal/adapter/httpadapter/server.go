package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/couchcryptid/climate-series-service/internal/adapter/csv"
	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxRegionBytes    = 16 << 20
	maxRequestBytes   = 32 << 20
	defaultRunTimeout = 5 * time.Minute
)

// Analyzer runs analyses and reports whether the raster backend is reachable.
type Analyzer interface {
	Run(ctx context.Context, in pipeline.RunInput) (pipeline.Result, error)
	CheckReadiness(ctx context.Context) error
}

// ResultStore looks up persisted results.
type ResultStore interface {
	FetchRun(ctx context.Context, runID string) (pipeline.Result, error)
	ListRuns(ctx context.Context, limit int) ([]pipeline.RunSummary, error)
}

// Options configures the API routes.
type Options struct {
	Regions *pipeline.RegionStore
	// Results enables GET /v1/analyses and GET /v1/analyses/{id} when set.
	Results ResultStore
	// RunTimeout bounds a single analysis request.
	RunTimeout time.Duration
}

// Server exposes the analysis API next to health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	regions    *pipeline.RegionStore
	results    ResultStore
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /v1 analysis routes.
func NewServer(addr string, analyzer Analyzer, logger *slog.Logger, opts Options) *Server {
	mux := http.NewServeMux()

	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	if opts.Regions == nil {
		opts.Regions = pipeline.NewRegionStore()
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: opts.RunTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		analyzer:   analyzer,
		regions:    opts.Regions,
		results:    opts.Results,
		runTimeout: opts.RunTimeout,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(analyzer))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("PUT /v1/region", s.putRegion)
	mux.HandleFunc("GET /v1/region", s.getRegion)
	mux.HandleFunc("POST /v1/analyses", s.postAnalysis)
	if opts.Results != nil {
		mux.HandleFunc("GET /v1/analyses", s.listAnalyses)
		mux.HandleFunc("GET /v1/analyses/{id}", s.getAnalysis)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type regionResponse struct {
	RegionID string     `json:"region_id"`
	Features []string   `json:"features"`
	Bounds   [4]float64 `json:"bounds"`
	Updated  time.Time  `json:"updated"`
}

func (s *Server) regionResponse(r *domain.Region) regionResponse {
	ids := make([]string, 0, r.Len())
	for _, f := range r.Features() {
		ids = append(ids, f.ID)
	}
	b := r.Bounds()
	return regionResponse{
		RegionID: r.Identity(),
		Features: ids,
		Bounds:   [4]float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
		Updated:  s.regions.Updated(),
	}
}

// putRegion replaces the session region with a GeoJSON FeatureCollection.
func (s *Server) putRegion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRegionBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "The region upload is too large.")
		return
	}
	region, err := domain.ParseRegion(body)
	if err == nil {
		err = s.regions.Set(region)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.Info("region replaced", "region", region.Identity()[:12], "features", region.Len())
	s.writeJSON(w, http.StatusOK, s.regionResponse(region))
}

func (s *Server) getRegion(w http.ResponseWriter, _ *http.Request) {
	region, err := s.regions.Get()
	if err != nil {
		s.writeError(w, http.StatusNotFound, domain.UserMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.regionResponse(region))
}

// analysisRequest is the body of POST /v1/analyses. Dates are YYYY-MM-DD;
// end is exclusive. Region overrides the session region when present.
type analysisRequest struct {
	Kind         string          `json:"kind"`
	Start        string          `json:"start"`
	End          string          `json:"end"`
	Statistic    string          `json:"statistic"`
	NominalScale float64         `json:"nominal_scale"`
	CloudLimit   float64         `json:"cloud_limit"`
	Year         int             `json:"year"`
	Region       json.RawMessage `json:"region,omitempty"`
}

func (s *Server) parseAnalysis(body []byte) (pipeline.RunInput, error) {
	var req analysisRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return pipeline.RunInput{}, badRequest("The request body is not valid JSON.")
	}
	kind, err := pipeline.ParseKind(req.Kind)
	if err != nil {
		return pipeline.RunInput{}, badRequest(fmt.Sprintf("Unknown analysis %q.", req.Kind))
	}
	stat, err := domain.ParseStatistic(req.Statistic)
	if err != nil {
		return pipeline.RunInput{}, badRequest(fmt.Sprintf("Unknown statistic %q.", req.Statistic))
	}
	start, err := time.Parse(time.DateOnly, req.Start)
	if err != nil {
		return pipeline.RunInput{}, badRequest("start must be a YYYY-MM-DD date.")
	}
	end, err := time.Parse(time.DateOnly, req.End)
	if err != nil {
		return pipeline.RunInput{}, badRequest("end must be a YYYY-MM-DD date.")
	}
	rng, err := domain.NewDateRange(start, end)
	if err != nil {
		return pipeline.RunInput{}, err
	}

	var region *domain.Region
	if len(req.Region) > 0 && string(req.Region) != "null" {
		region, err = domain.ParseRegion(req.Region)
	} else {
		region, err = s.regions.Get()
	}
	if err != nil {
		return pipeline.RunInput{}, err
	}

	return pipeline.RunInput{
		Kind:         kind,
		Region:       region,
		Range:        rng,
		Statistic:    stat,
		NominalScale: req.NominalScale,
		CloudLimit:   req.CloudLimit,
		Year:         req.Year,
	}, nil
}

// postAnalysis runs one analysis synchronously. The result is JSON unless the
// client asks for text/csv or passes format=csv, in which case only the row
// table is returned.
func (s *Server) postAnalysis(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "The request body is too large.")
		return
	}
	in, err := s.parseAnalysis(body)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	res, err := s.analyzer.Run(ctx, in)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(res.Kind)+"-"+res.RunID+".csv"))
		w.Header().Set("X-Run-ID", res.RunID)
		if err := csv.WriteRows(w, res.Rows); err != nil {
			s.logger.Error("write csv response", "run_id", res.RunID, "error", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := s.results.FetchRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.writeFailure(w, badRequest(fmt.Sprintf("limit must be between 1 and %d", maxListLimit)))
			return
		}
		limit = n
	}
	runs, err := s.results.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if runs == nil {
		runs = []pipeline.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func wantsCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if mt, _, err := mime.ParseMediaType(strings.TrimSpace(part)); err == nil && mt == "text/csv" {
			return true
		}
	}
	return false
}

// requestError is a client mistake caught before the analyzer runs.
type requestError struct{ msg string }

func badRequest(msg string) error { return &requestError{msg: msg} }

func (e *requestError) Error() string       { return e.msg }
func (e *requestError) UserMessage() string { return e.msg }

// statusFor maps analysis errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, domain.ErrInvalidGeometry),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrUnknownVariable),
		errors.Is(err, domain.ErrUnknownBand):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRejected):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := domain.UserMessage(err)
	switch {
	case status == http.StatusNotFound:
		msg = "No stored analysis has that run ID."
	case status == http.StatusGatewayTimeout:
		msg = "The analysis did not finish in time."
	case errors.Is(err, domain.ErrInvalidRange):
		msg = "The date range is not valid."
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "status", status, "error", err)
	}
	s.writeError(w, status, msg)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
