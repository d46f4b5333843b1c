package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playground"

// Metrics holds all Prometheus metrics for the playground service.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsInFlight  prometheus.Gauge
	CompilationsTotal *prometheus.CounterVec
	CompileDuration   *prometheus.HistogramVec
	RunDuration       prometheus.Histogram
	TimeoutsTotal     *prometheus.CounterVec
	ActiveWorkspaces  prometheus.Gauge
	SecurityEvents    *prometheus.CounterVec
	CodeSizeBytes     prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
	WasmSizeBytes     prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CompilationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compilations_total",
				Help:      "Requests handled by endpoint and result.",
			},
			[]string{"endpoint", "result"},
		),

		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of compiler invocations in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"backend", "target"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of sandboxed program runs in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 7},
			},
		),

		TimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Deadlines hit, by stage.",
			},
			[]string{"stage"},
		),

		ActiveWorkspaces: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workspaces",
				Help:      "Number of workspaces currently on disk.",
			},
		),

		SecurityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_events_total",
				Help:      "Suspicious patterns seen in code or output.",
			},
			[]string{"type"},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_size_bytes",
				Help:      "Size of text responses in bytes.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
		),

		WasmSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wasm_size_bytes",
				Help:      "Size of served WASM modules in bytes.",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
			},
		),
	}

	reg.MustRegister(
		m.RequestsInFlight,
		m.CompilationsTotal,
		m.CompileDuration,
		m.RunDuration,
		m.TimeoutsTotal,
		m.ActiveWorkspaces,
		m.SecurityEvents,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
		m.WasmSizeBytes,
	)

	return m
}

// RecordResult counts one finished request.
func (m *Metrics) RecordResult(endpoint, result string) {
	m.CompilationsTotal.WithLabelValues(endpoint, result).Inc()
}

// RecordCompile observes one compiler invocation.
func (m *Metrics) RecordCompile(backend, target string, durationSec float64) {
	m.CompileDuration.WithLabelValues(backend, target).Observe(durationSec)
}

// RecordTimeout counts a deadline hit in stage ("compile", "run" or "harness").
func (m *Metrics) RecordTimeout(stage string) {
	m.TimeoutsTotal.WithLabelValues(stage).Inc()
}

// RecordSecurityEvent records a security event.
func (m *Metrics) RecordSecurityEvent(eventType string) {
	m.SecurityEvents.WithLabelValues(eventType).Inc()
}
