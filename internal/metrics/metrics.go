// Package metrics exposes Prometheus instrumentation for evaluations and
// oracle exchanges. Each Metrics owns its registry so tests and embedded
// uses never collide on the global one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitaware"

// Metrics bundles every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// evaluations counts terminal outcomes.
	// Labels: outcome (benign, anomalous, verdict_benign, verdict_anomalous, error)
	evaluations *prometheus.CounterVec

	// formatViolations counts unparseable replies.
	// Labels: shape (boolean_only, proposal_list, rationale_list)
	formatViolations *prometheus.CounterVec

	// transportErrors counts failed oracle exchanges.
	// Labels: kind (network, auth, rate_limit, timeout, service, empty, canceled)
	transportErrors *prometheus.CounterVec

	// exchangeSeconds measures oracle round trips.
	// Labels: outcome (ok, error)
	exchangeSeconds *prometheus.HistogramVec

	// phaseSeconds measures evaluation phases including parsing.
	// Labels: phase (bootstrap, verdict, follow_up)
	phaseSeconds *prometheus.HistogramVec

	// contextTurns tracks the length of the most recently used context.
	contextTurns prometheus.Gauge
}

// New creates a Metrics bundle registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluations by terminal outcome",
		}, []string{"outcome"}),
		formatViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "format_violations_total",
			Help:      "Oracle replies that did not match the expected grammar",
		}, []string{"shape"}),
		transportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "transport_errors_total",
			Help:      "Failed oracle exchanges by kind",
		}, []string{"kind"}),
		exchangeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "exchange_seconds",
			Help:      "Oracle round-trip latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		phaseSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_seconds",
			Help:      "Evaluation phase latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"phase"}),
		contextTurns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_turns",
			Help:      "Turn count of the most recently used session context",
		}),
	}
}

// Evaluation records a terminal outcome.
func (m *Metrics) Evaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

// FormatViolation records an unparseable reply of the given shape.
func (m *Metrics) FormatViolation(shape string) {
	if m == nil {
		return
	}
	m.formatViolations.WithLabelValues(shape).Inc()
}

// TransportError records a failed exchange.
func (m *Metrics) TransportError(kind string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(kind).Inc()
}

// Exchange records the latency of one oracle round trip.
func (m *Metrics) Exchange(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.exchangeSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// Phase records the latency of one evaluation phase.
func (m *Metrics) Phase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// ContextTurns sets the context length gauge.
func (m *Metrics) ContextTurns(n int) {
	if m == nil {
		return
	}
	m.contextTurns.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
