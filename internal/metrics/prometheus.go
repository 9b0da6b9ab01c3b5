// Package metrics provides Prometheus metrics for cash flow projections.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes
const (
	OutcomeSuccess      = "success"
	OutcomeSchemaError  = "schema_error"
	OutcomeParseError   = "parse_error"
	OutcomeInvalidInput = "invalid_input"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry           *prometheus.Registry
	runsTotal          *prometheus.CounterVec
	rowsProjected      prometheus.Counter
	projectionDuration prometheus.Histogram
	exportsTotal       *prometheus.CounterVec
	validationWarnings prometheus.Counter
}

// NewMetrics creates metrics registered on their own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashflow_projection_runs_total",
				Help: "Total number of projection runs by outcome",
			},
			[]string{"outcome"},
		),
		rowsProjected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cashflow_rows_projected_total",
				Help: "Total number of lease records projected",
			},
		),
		projectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cashflow_projection_duration_seconds",
				Help:    "Time spent parsing and projecting a rent roll",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		exportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashflow_exports_total",
				Help: "Total number of cash flow exports by format",
			},
			[]string{"format"},
		),
		validationWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cashflow_validation_warnings_total",
				Help: "Inconsistent lease records projected in lenient mode",
			},
		),
	}
}

// RecordRun records the outcome of one projection run
func (m *Metrics) RecordRun(outcome string, rows int, duration time.Duration) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.rowsProjected.Add(float64(rows))
		m.projectionDuration.Observe(duration.Seconds())
	}
}

// RecordExport records one export
func (m *Metrics) RecordExport(format string) {
	m.exportsTotal.WithLabelValues(format).Inc()
}

// RecordValidationWarnings records inconsistencies let through in lenient mode
func (m *Metrics) RecordValidationWarnings(n int) {
	m.validationWarnings.Add(float64(n))
}

// RegisterRunCache exposes run cache statistics, read from stats at scrape
// time. Call it at most once per Metrics.
func (m *Metrics) RegisterRunCache(stats func() (size int, hits, misses int64)) {
	factory := promauto.With(m.registry)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "cashflow_run_cache_entries",
			Help: "Projection runs currently held in the run cache",
		},
		func() float64 {
			size, _, _ := stats()
			return float64(size)
		},
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "cashflow_run_cache_hits_total",
			Help: "Run lookups served from the run cache",
		},
		func() float64 {
			_, hits, _ := stats()
			return float64(hits)
		},
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "cashflow_run_cache_misses_total",
			Help: "Run lookups that fell through to the repository",
		},
		func() float64 {
			_, _, misses := stats()
			return float64(misses)
		},
	)
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
