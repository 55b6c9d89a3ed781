package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	if got := testutil.ToFloat64(m.ActiveConnections); got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}

	m.RecordEvent("canvas-update")
	m.RecordEvent("canvas-update")
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("canvas-update")); got != 2 {
		t.Errorf("canvas-update events = %v, want 2", got)
	}

	m.RecordBroadcast("chat-message", 3)
	m.RecordBroadcast("chat-message", 0)
	if got := testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("chat-message")); got != 3 {
		t.Errorf("chat-message broadcasts = %v, want 3", got)
	}

	m.SetRooms(4)
	if got := testutil.ToFloat64(m.ActiveRooms); got != 4 {
		t.Errorf("rooms = %v, want 4", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// two servers in one process must not collide
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetRooms(1)
	m.RecordEvent("x")
	m.RecordRejected("x")
	m.RecordBroadcast("x", 1)
	m.RecordSlowConsumer()
	m.RecordFlushError()
}
