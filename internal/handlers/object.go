package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
)

// ObjectHandler: canvas-update messages (add, update, delete)
type ObjectHandler struct {
	*emitter
	cache  CanvasState
	limits *middleware.RateLimit
}

func NewObjectHandler(e *emitter, cache CanvasState, limits *middleware.RateLimit) *ObjectHandler {
	return &ObjectHandler{emitter: e, cache: cache, limits: limits}
}

// HandleUpdate: applies the update to the project's canvas mirror and relays
// the payload to everyone else in the room. Unknown update types are relayed
// without a stored effect.
func (h *ObjectHandler) HandleUpdate(ctx context.Context, ch Channel, in *event.Inbound) error {
	u := in.Update
	if err := h.limits.ValidateObjectComplexity(u.Data); err != nil {
		return fmt.Errorf("%w: %v", ErrTooComplex, err)
	}

	if !h.cache.Apply(ctx, u.ProjectID, u.UpdateType, u.ObjectID, u.Data) {
		h.logger.Debug("canvas update type not stored",
			zap.String("project_id", u.ProjectID),
			zap.String("update_type", u.UpdateType),
		)
	}

	h.logger.Debug("canvas update",
		zap.String("project_id", u.ProjectID),
		zap.String("update_type", u.UpdateType),
		zap.String("object_type", u.ObjectType),
		zap.String("conn_id", ch.ID()),
	)
	return h.toRoom(u.ProjectID, event.CanvasUpdate, in.Data, room.ScopeOthers, ch.ID())
}
