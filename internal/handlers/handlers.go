package handlers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/metrics"
	"github.com/smartdesignpro/collab/internal/room"
)

var (
	// ErrIdentityMismatch: the event names a user other than the one the handshake token proved
	ErrIdentityMismatch = errors.New("handlers: user id does not match authenticated user")
	// ErrTooComplex: canvas data exceeds the configured depth or key limits
	ErrTooComplex = errors.New("handlers: canvas data too complex")
)

// emitter encodes outbound events and delivers them with the right scope.
// Shared by every handler so delivery accounting is in one place.
type emitter struct {
	rooms       Rooms
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// toRoom: broadcast to the project's subscribers, excluding senderID for ScopeOthers
func (e *emitter) toRoom(projectID, eventType string, payload any, scope room.Scope, senderID string) error {
	rm, ok := e.rooms.Room(projectID)
	if !ok {
		return nil
	}

	msg, err := event.Encode(eventType, payload)
	if err != nil {
		return err
	}

	n := e.broadcaster.Broadcast(rm, msg, scope, senderID)
	e.metrics.RecordBroadcast(eventType, n)
	return nil
}

// toChannel: reply to a single channel. A channel that cannot take the reply
// is closed; its disconnect runs the usual cleanup.
func (e *emitter) toChannel(ch Channel, eventType string, payload any) error {
	msg, err := event.Encode(eventType, payload)
	if err != nil {
		return err
	}
	if !ch.Send(msg) {
		e.logger.Warn("dropping slow channel", zap.String("conn_id", ch.ID()), zap.String("event", eventType))
		e.metrics.RecordSlowConsumer()
		ch.Close()
		return fmt.Errorf("send %s to %s: queue full", eventType, ch.ID())
	}
	e.metrics.RecordBroadcast(eventType, 1)
	return nil
}

// checkIdentity: rejects userID when the channel's token proved a different user
func checkIdentity(ch Channel, userID string) error {
	if pinned := ch.AuthenticatedUserID(); pinned != "" && pinned != userID {
		return fmt.Errorf("%w: token %q, event %q", ErrIdentityMismatch, pinned, userID)
	}
	return nil
}
