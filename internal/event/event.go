package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names
const (
	JoinRoom          = "join-room"
	LeaveRoom         = "leave-room"
	CanvasUpdate      = "canvas-update"
	CursorMove        = "cursor-move"
	CursorHide        = "cursor-hide"
	CommentAdd        = "comment-add"
	CommentUpdate     = "comment-update"
	CommentDelete     = "comment-delete"
	CommentResolve    = "comment-resolve"
	ChatMessage       = "chat-message"
	CanvasSyncRequest = "canvas-sync-request"
)

// Outbound-only event names. Relayed events keep their inbound name.
const (
	UserJoin   = "user-join"
	UserLeave  = "user-leave"
	UserList   = "user-list"
	CanvasSync = "canvas-sync"
)

var (
	ErrUnknownEvent   = errors.New("event: unknown type")
	ErrInvalidPayload = errors.New("event: invalid payload")
)

// Envelope is the frame sent in both directions over a channel
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode: wraps payload in an envelope
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	msg, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return msg, nil
}

// Inbound is a decoded, validated client event.
// Data holds the full payload (sanitized where applicable) for relaying;
// the typed fields are set for the events that need them.
type Inbound struct {
	Type      string
	ProjectID string
	Data      map[string]any

	Join   *JoinPayload
	Leave  *LeavePayload
	Update *CanvasUpdatePayload
}
