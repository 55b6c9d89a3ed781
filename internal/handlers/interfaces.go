package handlers

import (
	"context"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/room"
	"github.com/smartdesignpro/collab/internal/user"
)

// Channel is one client connection as the router sees it
type Channel interface {
	room.Subscriber

	// Identity: the project and user bound by the last join, zero before
	Identity() user.Identity
	Bind(id user.Identity)
	// AuthenticatedUserID: user id from the handshake token, "" when auth is off
	AuthenticatedUserID() string
}

// Broadcaster defines the broadcast operation for sending messages to room subscribers
type Broadcaster interface {
	Broadcast(rm room.RoomSubscribers, msg []byte, scope room.Scope, senderID string) int
}

// Rooms defines the registry operations the handlers need
type Rooms interface {
	Join(projectID string, p user.Participant, sub room.Subscriber) []user.Participant
	Leave(projectID, userID string) []user.Participant
	Unsubscribe(projectID, subID string) bool
	UnsubscribeAll(subID string)
	Room(projectID string) (*room.Room, bool)
}

// CanvasState defines the canvas cache operations the handlers need
type CanvasState interface {
	Apply(ctx context.Context, projectID, updateType, objectID string, data map[string]any) bool
	Snapshot(ctx context.Context, projectID string) []canvas.Object
}
