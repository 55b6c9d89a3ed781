package handlers

import (
	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/room"
)

// RelayHandler: comment and chat events. They go to the whole room, sender
// included, so clients can confirm optimistic updates.
type RelayHandler struct {
	*emitter
}

func NewRelayHandler(e *emitter) *RelayHandler {
	return &RelayHandler{emitter: e}
}

func (h *RelayHandler) Handle(ch Channel, in *event.Inbound) error {
	h.logger.Debug("relaying to room",
		zap.String("event", in.Type),
		zap.String("project_id", in.ProjectID),
		zap.String("conn_id", ch.ID()),
	)
	return h.toRoom(in.ProjectID, in.Type, in.Data, room.ScopeRoom, ch.ID())
}
