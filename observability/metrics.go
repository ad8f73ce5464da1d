package observability

import (
	"chat-hub/contract"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chathub"

// Metrics gathers the fan-out counters exposed on /metrics.
// A nil *Metrics is valid and records nothing, so tests can skip it.
type Metrics struct {
	liveConnections   prometheus.Gauge
	eventsBroadcast   *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	connectionsPruned prometheus.Counter
	messagesIngested  *prometheus.CounterVec
	assistantFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		liveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Connections currently registered.",
		}),
		eventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Events handed to the broadcaster, by tag.",
		}, []string{"type"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection delivery attempts, by result.",
		}, []string{"result"}),
		connectionsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_pruned_total",
			Help:      "Connections removed after a failed delivery or keep-alive.",
		}),
		messagesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Messages persisted by the ingestion pipeline, by destination kind.",
		}, []string{"kind"}),
		assistantFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_failures_total",
			Help:      "Assistant invocations that produced no reply.",
		}),
	}
}

func (m *Metrics) ConnectionOpened(contract.LiveConnection, bool) {
	if m == nil {
		return
	}
	m.liveConnections.Inc()
}

func (m *Metrics) ConnectionClosed(contract.LiveConnection, bool) {
	if m == nil {
		return
	}
	m.liveConnections.Dec()
}

func (m *Metrics) EventBroadcast(tag string, delivered, failed int) {
	if m == nil {
		return
	}
	m.eventsBroadcast.WithLabelValues(tag).Inc()
	m.deliveries.WithLabelValues("ok").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ConnectionsPruned(n int) {
	if m == nil {
		return
	}
	m.connectionsPruned.Add(float64(n))
}

func (m *Metrics) MessageIngested(kind string) {
	if m == nil {
		return
	}
	m.messagesIngested.WithLabelValues(kind).Inc()
}

func (m *Metrics) AssistantFailed() {
	if m == nil {
		return
	}
	m.assistantFailures.Inc()
}
