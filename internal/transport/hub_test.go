package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/config"
	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/handlers"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
)

// gatedRouter holds the first Route call until release is closed and
// reports every call it forwards
type gatedRouter struct {
	Router
	release chan struct{}
	once    sync.Once
	calls   chan string
}

func (g *gatedRouter) Route(ctx context.Context, ch handlers.Channel, msg []byte) error {
	g.once.Do(func() { <-g.release })
	err := g.Router.Route(ctx, ch, msg)
	g.calls <- "route:" + ch.ID()
	return err
}

func (g *gatedRouter) Disconnect(ch handlers.Channel) error {
	err := g.Router.Disconnect(ch)
	g.calls <- "disconnect:" + ch.ID()
	return err
}

func newGatedHub(t *testing.T) (*Hub, *gatedRouter, *room.Manager) {
	t.Helper()
	cfg := config.Default()
	logger := zap.NewNop()
	rooms := room.NewManager()
	limits := middleware.NewRateLimit(cfg.Limits.MaxMessageBytes, cfg.Limits.MaxObjectDepth, cfg.Limits.MaxObjectKeys,
		cfg.Limits.MessagesPerSecond, cfg.Limits.Burst)
	g := &gatedRouter{
		Router:  handlers.NewMessageRouter(rooms, canvas.NewCache(nil, logger), limits, nil, logger),
		release: make(chan struct{}),
		calls:   make(chan string, 16),
	}
	hub := NewHub(g, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub, g, rooms
}

func mustEncode(t *testing.T, eventType string, payload map[string]any) []byte {
	t.Helper()
	msg, err := event.Encode(eventType, payload)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func nextCall(t *testing.T, g *gatedRouter) string {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the hub")
		return ""
	}
}

func TestHubDisconnectFollowsQueuedJoin(t *testing.T) {
	hub, g, rooms := newGatedHub(t)

	other := newClient(nil, 16, nil, nil, "127.0.0.1")
	c := newClient(nil, 16, nil, nil, "127.0.0.1")
	if !hub.add(other) || !hub.add(c) {
		t.Fatal("hub refused clients")
	}

	syncReq := mustEncode(t, event.CanvasSyncRequest, map[string]any{"projectId": "P0"})
	hub.dispatch(other, syncReq) // holds the hub until released

	hub.dispatch(c, mustEncode(t, event.JoinRoom, map[string]any{"projectId": "P1", "userId": "u1", "userName": "Ada"}))
	hub.remove(c)
	close(g.release)

	want := []string{"route:" + other.ID(), "route:" + c.ID(), "disconnect:" + c.ID()}
	for _, w := range want {
		if got := nextCall(t, g); got != w {
			t.Fatalf("call = %s, want %s", got, w)
		}
	}
	if list := rooms.Participants("P1"); len(list) != 0 {
		t.Fatalf("participants after disconnect = %+v", list)
	}
}

func TestHubDropsFramesAfterRemove(t *testing.T) {
	hub, g, rooms := newGatedHub(t)

	other := newClient(nil, 16, nil, nil, "127.0.0.1")
	c := newClient(nil, 16, nil, nil, "127.0.0.1")
	hub.add(other)
	hub.add(c)

	syncReq := mustEncode(t, event.CanvasSyncRequest, map[string]any{"projectId": "P0"})
	hub.dispatch(other, syncReq)

	hub.remove(c)
	hub.dispatch(c, mustEncode(t, event.JoinRoom, map[string]any{"projectId": "P1", "userId": "u1", "userName": "Ada"}))
	hub.dispatch(other, syncReq)
	close(g.release)

	want := []string{"route:" + other.ID(), "disconnect:" + c.ID(), "route:" + other.ID()}
	for _, w := range want {
		if got := nextCall(t, g); got != w {
			t.Fatalf("call = %s, want %s", got, w)
		}
	}
	if list := rooms.Participants("P1"); len(list) != 0 {
		t.Fatalf("stale join admitted %+v", list)
	}

	// a second remove for the same client is a no-op
	hub.remove(c)
	hub.dispatch(other, syncReq)
	if got := nextCall(t, g); got != "route:"+other.ID() {
		t.Fatalf("call = %s after duplicate remove", got)
	}
}
