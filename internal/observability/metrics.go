package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_series"

// Metrics holds the Prometheus counters, histograms, and gauges for the analysis engine.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec   // labels: kind, outcome={success,error,cancelled}
	RunDuration  *prometheus.HistogramVec // labels: kind
	RunsInFlight prometheus.Gauge

	// Raster backend metrics.
	BackendRequests *prometheus.CounterVec   // labels: op={query,read}, outcome={success,error}
	BackendRetries  *prometheus.CounterVec   // labels: op
	BackendDuration *prometheus.HistogramVec // labels: op
	Observations    *prometheus.CounterVec   // labels: variable

	// Series quality.
	CompositeGaps *prometheus.CounterVec // labels: variable
	JoinSkipped   prometheus.Counter

	ResultCache *prometheus.CounterVec // labels: result={hit,miss}
	SinkErrors  *prometheus.CounterVec // labels: sink
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete analysis run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Analysis runs currently executing.",
		}),
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Raster backend calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		BackendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Raster backend calls retried after a transient failure.",
		}, []string{"op"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_duration_seconds",
			Help:      "Raster backend call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_read_total",
			Help:      "Observations materialized from the raster catalog.",
		}, []string{"variable"}),
		CompositeGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "composite_gaps_total",
			Help:      "Monthly periods dropped for having no observation.",
		}, []string{"variable"}),
		JoinSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_skipped_periods_total",
			Help:      "Periods present in only one side of a cross-variable join.",
		}),
		ResultCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed result deliveries by sink.",
		}, []string{"sink"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.RunsInFlight,
		m.BackendRequests,
		m.BackendRetries,
		m.BackendDuration,
		m.Observations,
		m.CompositeGaps,
		m.JoinSkipped,
		m.ResultCache,
		m.SinkErrors,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewLocalMetrics creates Metrics on a private registry, for one-shot tools
// that never serve /metrics.
func NewLocalMetrics() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewLocalMetrics()
}
