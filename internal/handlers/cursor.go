package handlers

import (
	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/room"
)

// CursorHandler handles cursor-move and cursor-hide. Positions are relayed
// as sent; the per-channel rate limit is the only throttle.
type CursorHandler struct {
	*emitter
}

func NewCursorHandler(e *emitter) *CursorHandler {
	return &CursorHandler{emitter: e}
}

func (h *CursorHandler) Handle(ch Channel, in *event.Inbound) error {
	return h.toRoom(in.ProjectID, in.Type, in.Data, room.ScopeOthers, ch.ID())
}
