package handlers

import (
	"context"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/event"
)

// canvasSync is the canvas-sync payload
type canvasSync struct {
	ProjectID string          `json:"projectId"`
	Objects   []canvas.Object `json:"objects"`
}

// Synchronizer: sends the current canvas state of a project to one channel
type Synchronizer struct {
	*emitter
	cache CanvasState
}

func NewSynchronizer(e *emitter, cache CanvasState) *Synchronizer {
	return &Synchronizer{emitter: e, cache: cache}
}

// SendSnapshot: replies with the stored objects, an empty list when the
// project has none
func (s *Synchronizer) SendSnapshot(ctx context.Context, ch Channel, projectID string) error {
	return s.toChannel(ch, event.CanvasSync, canvasSync{
		ProjectID: projectID,
		Objects:   s.cache.Snapshot(ctx, projectID),
	})
}

// HandleRequest: canvas-sync-request
func (s *Synchronizer) HandleRequest(ctx context.Context, ch Channel, projectID string) error {
	return s.SendSnapshot(ctx, ch, projectID)
}
