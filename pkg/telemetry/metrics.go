package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool

	// Namespace is the metric name prefix.
	Namespace string
}

// Metrics provides Prometheus metrics for runs and steps.
type Metrics struct {
	config MetricsConfig

	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	stepsObserved *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When disabled, all recording
// methods are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "desktide"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of runs completed, by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		stepsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of executed steps, by kind and outcome.",
		}, []string{"kind", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual steps, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.stepsObserved, m.stepDuration,
	)
	return m
}

// RunStarted records the start of a run.
func (m *Metrics) RunStarted() {
	if m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RunCompleted records a finished run with its outcome counts.
func (m *Metrics) RunCompleted(applied, skipped, failed int, duration time.Duration) {
	if m.registry == nil {
		return
	}
	result := "success"
	if failed > 0 {
		result = "partial"
	}
	m.runsCompleted.WithLabelValues(result).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// StepObserved records one executed step.
func (m *Metrics) StepObserved(kind, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.stepsObserved.WithLabelValues(kind, status).Inc()
	m.stepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the metrics, or nil when
// metrics are disabled. Used by watch mode, where the process is
// long-lived enough to scrape.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
