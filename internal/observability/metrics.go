package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the orchestrator.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	TimelineEvents   *prometheus.CounterVec
	BroadcastDropped *prometheus.CounterVec
	CommandLatency   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions in a non-terminal status.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Commands: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands by namespace, verb and outcome.",
		}, []string{"namespace", "verb", "outcome"}),
		TimelineEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_events_total",
			Help:      "Timeline events appended, by type.",
		}, []string{"type"}),
		BroadcastDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Broadcast events dropped on saturated observers, by type.",
		}, []string{"type"}),
		CommandLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_ms",
			Help:      "Command execution latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) ObserveCommand(namespace, verb, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(namespace, verb, outcome).Inc()
	m.CommandLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTimelineEvent(eventType string) {
	if m == nil {
		return
	}
	m.TimelineEvents.WithLabelValues(eventType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
