package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/metrics"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
	"github.com/smartdesignpro/collab/internal/user"
)

type fakeChannel struct {
	id       string
	authUser string
	full     bool

	mu       sync.Mutex
	identity user.Identity
	frames   []event.Envelope
	closed   bool
}

func newChannel(id string) *fakeChannel { return &fakeChannel{id: id} }

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	var env event.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		panic(err)
	}
	c.frames = append(c.frames, env)
	return true
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeChannel) Identity() user.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *fakeChannel) Bind(id user.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

func (c *fakeChannel) AuthenticatedUserID() string { return c.authUser }

// take returns and clears the frames received so far
func (c *fakeChannel) take() []event.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func types(frames []event.Envelope) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type testEnv struct {
	router  *MessageRouter
	rooms   *room.Manager
	cache   *canvas.Cache
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rooms := room.NewManager()
	cache := canvas.NewCache(nil, nil)
	m := metrics.New(prometheus.NewRegistry())
	limits := middleware.NewRateLimit(0, 4, 50, 0, 0)
	return &testEnv{
		router:  NewMessageRouter(rooms, cache, limits, m, zap.NewNop()),
		rooms:   rooms,
		cache:   cache,
		metrics: m,
	}
}

func frame(t *testing.T, eventType string, payload map[string]any) []byte {
	t.Helper()
	msg, err := event.Encode(eventType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", eventType, err)
	}
	return msg
}

func (e *testEnv) send(t *testing.T, ch Channel, eventType string, payload map[string]any) {
	t.Helper()
	if err := e.router.Route(context.Background(), ch, frame(t, eventType, payload)); err != nil {
		t.Fatalf("Route(%s) error = %v", eventType, err)
	}
}

func (e *testEnv) join(t *testing.T, ch *fakeChannel, projectID, userID, name string) {
	t.Helper()
	e.send(t, ch, event.JoinRoom, map[string]any{
		"projectId": projectID,
		"userId":    userID,
		"userName":  name,
	})
}

func TestJoinRepliesAndAnnounces(t *testing.T) {
	env := newTestEnv(t)
	a, b := newChannel("a"), newChannel("b")

	env.join(t, a, "P1", "u1", "Ada")
	if got := types(a.take()); !equal(got, []string{event.UserList, event.CanvasSync}) {
		t.Fatalf("joiner frames = %v", got)
	}

	env.send(t, b, event.JoinRoom, map[string]any{
		"projectId": "P1",
		"userId":    "u2",
		"userName":  "Bob",
		"cursor":    "extra fields survive",
	})

	toA := a.take()
	if len(toA) != 1 || toA[0].Type != event.UserJoin {
		t.Fatalf("existing member frames = %v", types(toA))
	}
	var joined map[string]any
	if err := json.Unmarshal(toA[0].Payload, &joined); err != nil {
		t.Fatal(err)
	}
	if joined["userId"] != "u2" || joined["cursor"] != "extra fields survive" {
		t.Fatalf("user-join payload = %v, want the raw join payload", joined)
	}

	toB := b.take()
	if got := types(toB); !equal(got, []string{event.UserList, event.CanvasSync}) {
		t.Fatalf("joiner frames = %v", got)
	}
	var list []user.Participant
	if err := json.Unmarshal(toB[0].Payload, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "u1" || list[1].ID != "u2" {
		t.Fatalf("user-list = %+v", list)
	}
	if list[1].Role != user.RoleEditor || list[1].Email != "Bob@example.com" || !list[1].IsOnline || list[1].Color == "" {
		t.Fatalf("defaults not applied: %+v", list[1])
	}

	var snap struct {
		ProjectID string           `json:"projectId"`
		Objects   []map[string]any `json:"objects"`
	}
	if err := json.Unmarshal(toB[1].Payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.ProjectID != "P1" || snap.Objects == nil || len(snap.Objects) != 0 {
		t.Fatalf("canvas-sync = %s, want empty object list", toB[1].Payload)
	}

	if id := b.Identity(); id.ProjectID != "P1" || id.UserID != "u2" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestCanvasAddReachesOthersAndLateJoiner(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := newChannel("a"), newChannel("b"), newChannel("c")
	env.join(t, a, "P1", "u1", "Ada")
	env.join(t, b, "P1", "u2", "Bob")
	a.take()
	b.take()

	env.send(t, a, event.CanvasUpdate, map[string]any{
		"projectId":  "P1",
		"updateType": "add",
		"objectType": "rect",
		"data":       map[string]any{"id": "obj1", "type": "rect"},
	})

	if got := a.take(); len(got) != 0 {
		t.Fatalf("sender received its own canvas-update: %v", types(got))
	}
	toB := b.take()
	if len(toB) != 1 || toB[0].Type != event.CanvasUpdate {
		t.Fatalf("peer frames = %v", types(toB))
	}

	env.send(t, c, event.CanvasSyncRequest, map[string]any{"projectId": "P1"})
	toC := c.take()
	if len(toC) != 1 || toC[0].Type != event.CanvasSync {
		t.Fatalf("sync frames = %v", types(toC))
	}
	if got := string(toC[0].Payload); got != `{"projectId":"P1","objects":[{"id":"obj1","type":"rect"}]}` {
		t.Fatalf("canvas-sync payload = %s", got)
	}
}

func TestSyncRequestForUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	c := newChannel("c")
	env.send(t, c, event.CanvasSyncRequest, map[string]any{"projectId": "nothing-here"})

	frames := c.take()
	if len(frames) != 1 || string(frames[0].Payload) != `{"projectId":"nothing-here","objects":[]}` {
		t.Fatalf("frames = %v", frames)
	}
}

func TestBroadcastScopes(t *testing.T) {
	tests := []struct {
		event       string
		payload     map[string]any
		senderGets  bool
		otherGets   bool
		outsiderGet bool
	}{
		{event: event.CommentAdd, payload: map[string]any{"text": "hi"}, senderGets: true, otherGets: true},
		{event: event.CommentUpdate, payload: map[string]any{"id": "c1"}, senderGets: true, otherGets: true},
		{event: event.CommentDelete, payload: map[string]any{"id": "c1"}, senderGets: true, otherGets: true},
		{event: event.CommentResolve, payload: map[string]any{"id": "c1"}, senderGets: true, otherGets: true},
		{event: event.ChatMessage, payload: map[string]any{"userName": "Ada", "text": "hey"}, senderGets: true, otherGets: true},
		{event: event.CursorMove, payload: map[string]any{"x": 1.5, "y": 2.0}, otherGets: true},
		{event: event.CursorHide, payload: map[string]any{"userId": "u1"}, otherGets: true},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			env := newTestEnv(t)
			a, b, outsider := newChannel("a"), newChannel("b"), newChannel("x")
			env.join(t, a, "P1", "u1", "Ada")
			env.join(t, b, "P1", "u2", "Bob")
			env.join(t, outsider, "P2", "u3", "Cy")
			a.take()
			b.take()
			outsider.take()

			payload := map[string]any{"projectId": "P1"}
			for k, v := range tt.payload {
				payload[k] = v
			}
			env.send(t, a, tt.event, payload)

			if got := len(a.take()) == 1; got != tt.senderGets {
				t.Errorf("sender received = %v, want %v", got, tt.senderGets)
			}
			if got := len(b.take()) == 1; got != tt.otherGets {
				t.Errorf("peer received = %v, want %v", got, tt.otherGets)
			}
			if got := len(outsider.take()) > 0; got {
				t.Error("other project received the event")
			}
		})
	}
}

func TestCommentTextIsSanitized(t *testing.T) {
	env := newTestEnv(t)
	a := newChannel("a")
	env.join(t, a, "P1", "u1", "Ada")
	a.take()

	env.send(t, a, event.CommentAdd, map[string]any{
		"projectId": "P1",
		"text":      `<script>alert(1)</script>looks good`,
	})
	frames := a.take()
	var got map[string]any
	if err := json.Unmarshal(frames[0].Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["text"] != "looks good" {
		t.Fatalf("text = %q", got["text"])
	}
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	env := newTestEnv(t)
	a, b := newChannel("a"), newChannel("b")
	env.send(t, a, event.JoinRoom, map[string]any{"projectId": "P1", "userId": "u1"})
	env.join(t, b, "P1", "u2", "Bob")
	a.take()
	b.take()

	if err := env.router.Disconnect(a); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	frames := b.take()
	if len(frames) != 1 || frames[0].Type != event.UserLeave {
		t.Fatalf("peer frames = %v", types(frames))
	}
	if got := string(frames[0].Payload); got != `{"projectId":"P1","userId":"u1","userName":"Unknown User"}` {
		t.Fatalf("user-leave payload = %s", got)
	}
	if list := env.rooms.Participants("P1"); len(list) != 1 || list[0].ID != "u2" {
		t.Fatalf("participants = %+v", list)
	}
	if a.Identity().Joined() {
		t.Fatal("identity should be cleared")
	}
}

func TestDisconnectWithoutJoinIsNoop(t *testing.T) {
	env := newTestEnv(t)
	b := newChannel("b")
	env.join(t, b, "P1", "u2", "Bob")
	b.take()

	if err := env.router.Disconnect(newChannel("ghost")); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := b.take(); len(got) != 0 {
		t.Fatalf("unexpected frames %v", types(got))
	}
}

func TestLeaveRoom(t *testing.T) {
	env := newTestEnv(t)
	a, b := newChannel("a"), newChannel("b")
	env.join(t, a, "P1", "u1", "Ada")
	env.join(t, b, "P1", "u2", "Bob")
	a.take()
	b.take()

	env.send(t, a, event.LeaveRoom, map[string]any{"projectId": "P1", "userId": "u1", "userName": "Ada"})

	if got := types(b.take()); !equal(got, []string{event.UserLeave}) {
		t.Fatalf("peer frames = %v", got)
	}
	if got := a.take(); len(got) != 0 {
		t.Fatalf("leaver received %v", types(got))
	}

	// the leaver no longer hears the room
	env.send(t, b, event.ChatMessage, map[string]any{"projectId": "P1", "userName": "Bob"})
	if got := a.take(); len(got) != 0 {
		t.Fatalf("leaver received %v after leaving", types(got))
	}
	// and a later disconnect does not announce it again
	if err := env.router.Disconnect(a); err != nil {
		t.Fatal(err)
	}
	b.take()
	if list := env.rooms.Participants("P1"); len(list) != 1 {
		t.Fatalf("participants = %+v", list)
	}
}

func TestJoinOtherProjectLeavesPrevious(t *testing.T) {
	env := newTestEnv(t)
	a, b := newChannel("a"), newChannel("b")
	env.join(t, a, "P1", "u1", "Ada")
	env.join(t, b, "P1", "u2", "Bob")
	a.take()
	b.take()

	env.join(t, a, "P2", "u1", "Ada")

	frames := b.take()
	if len(frames) != 1 || frames[0].Type != event.UserLeave {
		t.Fatalf("old room frames = %v", types(frames))
	}
	if list := env.rooms.Participants("P1"); len(list) != 1 || list[0].ID != "u2" {
		t.Fatalf("P1 participants = %+v", list)
	}

	env.send(t, b, event.ChatMessage, map[string]any{"projectId": "P1", "userName": "Bob"})
	for _, f := range a.take() {
		if f.Type == event.ChatMessage {
			t.Fatal("channel still subscribed to previous project")
		}
	}
}

func TestRejoinReplacesEntry(t *testing.T) {
	env := newTestEnv(t)
	a, a2 := newChannel("a"), newChannel("a2")
	env.join(t, a, "P1", "u1", "Ada")
	env.join(t, a2, "P1", "u1", "Ada")

	if list := env.rooms.Participants("P1"); len(list) != 1 {
		t.Fatalf("participants = %+v, want single entry", list)
	}
}

func TestAuthenticatedUserIsPinned(t *testing.T) {
	env := newTestEnv(t)
	a := newChannel("a")
	a.authUser = "u1"

	err := env.router.Route(context.Background(), a, frame(t, event.JoinRoom, map[string]any{
		"projectId": "P1",
		"userId":    "someone-else",
	}))
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("Route() error = %v, want ErrIdentityMismatch", err)
	}
	if list := env.rooms.Participants("P1"); len(list) != 0 {
		t.Fatalf("participants = %+v", list)
	}
	if got := testutil.ToFloat64(env.metrics.RejectedTotal.WithLabelValues("identity_mismatch")); got != 1 {
		t.Fatalf("identity_mismatch rejections = %v", got)
	}

	env.join(t, a, "P1", "u1", "Ada")
}

func TestRejectedFrames(t *testing.T) {
	tests := []struct {
		name   string
		msg    []byte
		want   error
		reason string
	}{
		{name: "not json", msg: []byte(`{`), want: event.ErrInvalidPayload, reason: "invalid_payload"},
		{name: "unknown event", msg: []byte(`{"type":"project:explode","payload":{"projectId":"P1"}}`), want: event.ErrUnknownEvent, reason: "unknown_event"},
		{name: "missing project", msg: []byte(`{"type":"chat-message","payload":{"text":"hi"}}`), want: event.ErrInvalidPayload, reason: "invalid_payload"},
		{
			name:   "too deep",
			msg:    []byte(`{"type":"canvas-update","payload":{"projectId":"P1","updateType":"add","data":{"a":{"b":{"c":{"d":{"e":{"f":1}}}}}}}}`),
			want:   ErrTooComplex,
			reason: "too_complex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			err := env.router.Route(context.Background(), newChannel("a"), tt.msg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Route() error = %v, want %v", err, tt.want)
			}
			if got := testutil.ToFloat64(env.metrics.RejectedTotal.WithLabelValues(tt.reason)); got != 1 {
				t.Fatalf("%s rejections = %v", tt.reason, got)
			}
			if env.cache.Count("P1") != 0 {
				t.Fatal("rejected frame reached the cache")
			}
		})
	}
}

func TestUnknownUpdateTypeIsRelayedNotStored(t *testing.T) {
	env := newTestEnv(t)
	a, b := newChannel("a"), newChannel("b")
	env.join(t, a, "P1", "u1", "Ada")
	env.join(t, b, "P1", "u2", "Bob")
	b.take()

	env.send(t, a, event.CanvasUpdate, map[string]any{
		"projectId":  "P1",
		"updateType": "reorder",
		"objectId":   "obj1",
	})

	if got := types(b.take()); !equal(got, []string{event.CanvasUpdate}) {
		t.Fatalf("peer frames = %v", got)
	}
	if env.cache.Count("P1") != 0 {
		t.Fatal("unknown update type changed the cache")
	}
}

func TestSlowJoinerIsClosed(t *testing.T) {
	env := newTestEnv(t)
	a := newChannel("a")
	a.full = true

	err := env.router.Route(context.Background(), a, frame(t, event.JoinRoom, map[string]any{"projectId": "P1", "userId": "u1"}))
	if err == nil {
		t.Fatal("Route() should report the undeliverable reply")
	}
	if !a.closed {
		t.Fatal("channel with a full queue should be closed")
	}
	if got := testutil.ToFloat64(env.metrics.SlowConsumers); got != 1 {
		t.Fatalf("slow consumers = %v", got)
	}
}
