package room

import (
	"go.uber.org/zap"
)

// Scope selects which of a room's subscribers get a broadcast
type Scope int

const (
	// ScopeRoom: every subscriber, sender included
	ScopeRoom Scope = iota
	// ScopeOthers: every subscriber except the sender
	ScopeOthers
)

func (s Scope) String() string {
	switch s {
	case ScopeRoom:
		return "room"
	case ScopeOthers:
		return "others"
	default:
		return "unknown"
	}
}

// RoomSubscribers: minimum interface for broadcasting
type RoomSubscribers interface {
	Subscribers() []Subscriber
	Unsubscribe(subID string) bool
}

// Broadcaster: fans messages out to room subscribers
type Broadcaster struct {
	logger *zap.Logger
	// onDrop is called for every subscriber removed as a slow consumer
	onDrop func(sub Subscriber)
}

// NewBroadcaster: creates a new broadcaster
func NewBroadcaster(logger *zap.Logger, onDrop func(sub Subscriber)) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{logger: logger, onDrop: onDrop}
}

// Broadcast: queues msg for the room's subscribers in scope and returns how
// many accepted it. Subscribers whose queue is full are unsubscribed and closed.
func (b *Broadcaster) Broadcast(rm RoomSubscribers, msg []byte, scope Scope, senderID string) int {
	if rm == nil {
		return 0
	}

	var failed []Subscriber
	delivered := 0
	for _, sub := range rm.Subscribers() {
		if scope == ScopeOthers && sub.ID() == senderID {
			continue
		}
		if !sub.Send(msg) {
			failed = append(failed, sub)
			continue
		}
		delivered++
	}

	// Clean up slow consumers
	for _, sub := range failed {
		b.logger.Warn("dropping slow subscriber", zap.String("conn_id", sub.ID()))
		rm.Unsubscribe(sub.ID())
		sub.Close()
		if b.onDrop != nil {
			b.onDrop(sub)
		}
	}

	return delivered
}
