package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics: collectors for the collaboration relay. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	RejectedTotal     *prometheus.CounterVec
	BroadcastsTotal   *prometheus.CounterVec
	SlowConsumers     prometheus.Counter
	CanvasFlushErrors prometheus.Counter
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collab_active_connections",
			Help: "Current number of open WebSocket channels",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collab_active_rooms",
			Help: "Current number of project rooms in the registry",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_events_total",
			Help: "Inbound events accepted, by event type",
		}, []string{"type"}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_events_rejected_total",
			Help: "Inbound messages dropped before routing, by reason",
		}, []string{"reason"}),
		BroadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_broadcast_messages_total",
			Help: "Outbound messages queued, by event type",
		}, []string{"type"}),
		SlowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_slow_consumers_total",
			Help: "Channels closed because their send queue was full",
		}),
		CanvasFlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "collab_canvas_flush_errors_total",
			Help: "Failed canvas snapshot flushes",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.ActiveRooms.Set(float64(n))
}

func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordBroadcast(eventType string, recipients int) {
	if m == nil || recipients <= 0 {
		return
	}
	m.BroadcastsTotal.WithLabelValues(eventType).Add(float64(recipients))
}

func (m *Metrics) RecordSlowConsumer() {
	if m == nil {
		return
	}
	m.SlowConsumers.Inc()
}

func (m *Metrics) RecordFlushError() {
	if m == nil {
		return
	}
	m.CanvasFlushErrors.Inc()
}
