package handlers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/metrics"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
)

// MessageRouter routes incoming messages to appropriate handlers
type MessageRouter struct {
	decoder       *event.Decoder
	metrics       *metrics.Metrics
	userHandler   *UserHandler
	objectHandler *ObjectHandler
	cursorHandler *CursorHandler
	relayHandler  *RelayHandler
	synchronizer  *Synchronizer
}

func NewMessageRouter(
	rooms Rooms,
	cache CanvasState,
	limits *middleware.RateLimit,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MessageRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	broadcaster := room.NewBroadcaster(logger, func(room.Subscriber) {
		m.RecordSlowConsumer()
	})
	e := &emitter{rooms: rooms, broadcaster: broadcaster, metrics: m, logger: logger}
	sync := NewSynchronizer(e, cache)

	return &MessageRouter{
		decoder:       event.NewDecoder(),
		metrics:       m,
		userHandler:   NewUserHandler(e, sync),
		objectHandler: NewObjectHandler(e, cache, limits),
		cursorHandler: NewCursorHandler(e),
		relayHandler:  NewRelayHandler(e),
		synchronizer:  sync,
	}
}

// Route: decode a frame from ch and process it via the appropriate handler.
// Rejected frames are counted and returned as errors; nothing is sent back.
func (mr *MessageRouter) Route(ctx context.Context, ch Channel, msg []byte) error {
	in, err := mr.decoder.Decode(msg)
	if err != nil {
		mr.metrics.RecordRejected(rejectReason(err))
		return err
	}

	if err := mr.dispatch(ctx, ch, in); err != nil {
		mr.metrics.RecordRejected(rejectReason(err))
		return fmt.Errorf("%s: %w", in.Type, err)
	}
	mr.metrics.RecordEvent(in.Type)
	return nil
}

func (mr *MessageRouter) dispatch(ctx context.Context, ch Channel, in *event.Inbound) error {
	switch in.Type {
	case event.JoinRoom:
		return mr.userHandler.HandleJoin(ctx, ch, in)
	case event.LeaveRoom:
		return mr.userHandler.HandleLeave(ch, in)
	case event.CanvasUpdate:
		return mr.objectHandler.HandleUpdate(ctx, ch, in)
	case event.CursorMove, event.CursorHide:
		return mr.cursorHandler.Handle(ch, in)
	case event.CommentAdd, event.CommentUpdate, event.CommentDelete, event.CommentResolve, event.ChatMessage:
		return mr.relayHandler.Handle(ch, in)
	case event.CanvasSyncRequest:
		return mr.synchronizer.HandleRequest(ctx, ch, in.ProjectID)
	default:
		return fmt.Errorf("%w: %s", event.ErrUnknownEvent, in.Type)
	}
}

// Disconnect: cleanup for a channel whose connection ended
func (mr *MessageRouter) Disconnect(ch Channel) error {
	return mr.userHandler.HandleDisconnect(ch)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, event.ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, event.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrTooComplex):
		return "too_complex"
	default:
		return "delivery"
	}
}
