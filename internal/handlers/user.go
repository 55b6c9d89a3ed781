package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/event"
	"github.com/smartdesignpro/collab/internal/room"
	"github.com/smartdesignpro/collab/internal/user"
)

// leaveNotice is the user-leave payload sent on disconnect or project switch
type leaveNotice struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

// UserHandler: presence events (join, leave, disconnect)
type UserHandler struct {
	*emitter
	sync *Synchronizer
}

func NewUserHandler(e *emitter, sync *Synchronizer) *UserHandler {
	return &UserHandler{emitter: e, sync: sync}
}

// HandleJoin: registers the participant, tells the others, then bootstraps
// the joiner with the member list and the canvas snapshot
func (h *UserHandler) HandleJoin(ctx context.Context, ch Channel, in *event.Inbound) error {
	p := in.Join
	if err := checkIdentity(ch, p.UserID); err != nil {
		return err
	}

	// a channel belongs to one project at a time
	if prev := ch.Identity(); prev.Joined() && (prev.ProjectID != p.ProjectID || prev.UserID != p.UserID) {
		h.leaveRoom(ch, prev)
	}

	participants := h.rooms.Join(p.ProjectID, user.Participant{
		ID:    p.UserID,
		Name:  p.UserName,
		Email: p.Email,
		Color: p.Color,
		Role:  p.Role,
	}, ch)
	ch.Bind(user.Identity{ProjectID: p.ProjectID, UserID: p.UserID, UserName: p.UserName})

	h.logger.Info("user joined project",
		zap.String("project_id", p.ProjectID),
		zap.String("user_id", p.UserID),
		zap.String("user_name", p.UserName),
		zap.Int("active_users", len(participants)),
	)

	if err := h.toRoom(p.ProjectID, event.UserJoin, in.Data, room.ScopeOthers, ch.ID()); err != nil {
		return err
	}
	if err := h.toChannel(ch, event.UserList, participants); err != nil {
		return err
	}
	return h.sync.SendSnapshot(ctx, ch, p.ProjectID)
}

// HandleLeave: removes the participant named in the payload and tells the others
func (h *UserHandler) HandleLeave(ch Channel, in *event.Inbound) error {
	p := in.Leave
	if err := checkIdentity(ch, p.UserID); err != nil {
		return err
	}

	remaining := h.rooms.Leave(p.ProjectID, p.UserID)
	h.rooms.Unsubscribe(p.ProjectID, ch.ID())
	if id := ch.Identity(); id.ProjectID == p.ProjectID {
		ch.Bind(user.Identity{})
	}

	h.logger.Info("user left project",
		zap.String("project_id", p.ProjectID),
		zap.String("user_id", p.UserID),
		zap.Int("active_users", len(remaining)),
	)
	return h.toRoom(p.ProjectID, event.UserLeave, in.Data, room.ScopeOthers, ch.ID())
}

// HandleDisconnect: drops the channel from every room and, if it had joined,
// reports its user as gone. No-op for channels that never joined.
func (h *UserHandler) HandleDisconnect(ch Channel) error {
	id := ch.Identity()
	h.rooms.UnsubscribeAll(ch.ID())
	if !id.Joined() {
		return nil
	}
	ch.Bind(user.Identity{})

	remaining := h.rooms.Leave(id.ProjectID, id.UserID)
	h.logger.Info("user disconnected",
		zap.String("conn_id", ch.ID()),
		zap.String("project_id", id.ProjectID),
		zap.String("user_id", id.UserID),
		zap.Int("remaining_users", len(remaining)),
	)
	return h.toRoom(id.ProjectID, event.UserLeave, leaveNotice{
		ProjectID: id.ProjectID,
		UserID:    id.UserID,
		UserName:  id.DisplayName(),
	}, room.ScopeOthers, ch.ID())
}

// leaveRoom: implicit leave of the channel's previous project
func (h *UserHandler) leaveRoom(ch Channel, prev user.Identity) {
	h.rooms.Leave(prev.ProjectID, prev.UserID)
	h.rooms.Unsubscribe(prev.ProjectID, ch.ID())
	ch.Bind(user.Identity{})

	if err := h.toRoom(prev.ProjectID, event.UserLeave, leaveNotice{
		ProjectID: prev.ProjectID,
		UserID:    prev.UserID,
		UserName:  prev.DisplayName(),
	}, room.ScopeOthers, ch.ID()); err != nil {
		h.logger.Warn("implicit leave notice failed", zap.String("project_id", prev.ProjectID), zap.Error(err))
	}
}
