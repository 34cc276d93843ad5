// Package observability provides the Prometheus metrics and debug HTTP
// sidecar this worker exposes alongside its hand-rolled C3/C4 transport
// stack. Unlike the teacher's observability package, which keeps its
// collectors as package-level globals, Metrics owns its own registry so
// the entry point can construct and inject it like everything else
// (§9's redesign note applies to this ambient concern too, not just
// config/manager).
package observability

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of collectors this worker updates as it processes
// rooms, pipeline packets, and signalling traffic.
type Metrics struct {
	registry *prometheus.Registry

	ActiveRooms      prometheus.Gauge
	RoomsCreatedTotal prometheus.Counter
	RoomsEvictedTotal prometheus.Counter

	PipelinePacketsTotal *prometheus.CounterVec // labels: stage, direction
	QueueDroppedTotal    *prometheus.CounterVec // labels: stage

	SignallingReconnectsTotal prometheus.Counter
	SignallingNotificationsTotal *prometheus.CounterVec // labels: method, direction

	TTSRequestsTotal  *prometheus.CounterVec // labels: status
	TTSLatencySeconds prometheus.Histogram

	CircuitBreakerState *prometheus.GaugeVec // labels: service; 0=closed, 1=open, 2=half-open
}

// Gather exposes the private registry's current samples, for tests and
// any caller that wants to inspect collected values directly rather than
// scrape them over HTTP.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

// New returns a Metrics bound to a fresh, private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceagent_active_rooms",
			Help: "Number of rooms currently registered with the room manager.",
		}),
		RoomsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_rooms_created_total",
			Help: "Total number of rooms created.",
		}),
		RoomsEvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_rooms_evicted_total",
			Help: "Total number of rooms evicted for idleness.",
		}),
		PipelinePacketsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_pipeline_packets_total",
			Help: "Total packets/frames processed by a pipeline stage.",
		}, []string{"stage", "direction"}),
		QueueDroppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_queue_dropped_total",
			Help: "Total items dropped from a pipeline stage's bounded queue due to overflow.",
		}, []string{"stage"}),
		SignallingReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_signalling_reconnects_total",
			Help: "Total successful signalling reconnects (connects after the first).",
		}),
		SignallingNotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_signalling_notifications_total",
			Help: "Total signalling notifications sent/received.",
		}, []string{"method", "direction"}),
		TTSRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_tts_requests_total",
			Help: "Total TTS synthesis requests.",
		}, []string{"status"}),
		TTSLatencySeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceagent_tts_latency_seconds",
			Help:    "TTS synthesis latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voiceagent_circuit_breaker_state",
			Help: "Circuit breaker state per service (0=closed, 1=open, 2=half-open).",
		}, []string{"service"}),
	}
}
