// Package observability exposes the engine's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's Prometheus collectors. A nil *Metrics is
// valid everywhere and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CyclesProcessed  *prometheus.CounterVec
	SamplesRendered  *prometheus.CounterVec
	NodeEvaluations  prometheus.Counter
	PendingOpsDepth  prometheus.Gauge
	RingDrops        prometheus.Counter
	RoutineFaults    prometheus.Counter
	RoutinesResumed  prometheus.Counter
	CallbackDuration prometheus.Histogram
}

// NewMetrics registers the engine collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CyclesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mayaflux_cycles_processed_total",
			Help: "Processing cycles completed, by token.",
		}, []string{"token"}),
		SamplesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mayaflux_samples_rendered_total",
			Help: "Samples rendered, by token.",
		}, []string{"token"}),
		NodeEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mayaflux_node_evaluations_total",
			Help: "Node evaluations performed by root collectors.",
		}),
		PendingOpsDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mayaflux_pending_ops_depth",
			Help: "Deferred graph mutations awaiting the next pass.",
		}),
		RingDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mayaflux_event_ring_drops_total",
			Help: "Events dropped because the audio event ring was full.",
		}),
		RoutineFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mayaflux_routine_faults_total",
			Help: "Scheduled routines removed after panicking on resume.",
		}),
		RoutinesResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mayaflux_routines_resumed_total",
			Help: "Routine resumptions performed by the scheduler.",
		}),
		CallbackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mayaflux_callback_duration_seconds",
			Help:    "Wall time of one audio callback.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	registry.MustRegister(
		m.CyclesProcessed,
		m.SamplesRendered,
		m.NodeEvaluations,
		m.PendingOpsDepth,
		m.RingDrops,
		m.RoutineFaults,
		m.RoutinesResumed,
		m.CallbackDuration,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed cycle for a token.
func (m *Metrics) ObserveCycle(token string, samples int) {
	if m == nil {
		return
	}
	m.CyclesProcessed.WithLabelValues(token).Inc()
	m.SamplesRendered.WithLabelValues(token).Add(float64(samples))
}

// ObserveRoutineFault records one removed routine.
func (m *Metrics) ObserveRoutineFault() {
	if m == nil {
		return
	}
	m.RoutineFaults.Inc()
}

// ObserveRoutineResume records one routine resumption.
func (m *Metrics) ObserveRoutineResume() {
	if m == nil {
		return
	}
	m.RoutinesResumed.Inc()
}

// ObserveRingDrop records one dropped audio event.
func (m *Metrics) ObserveRingDrop() {
	if m == nil {
		return
	}
	m.RingDrops.Inc()
}
