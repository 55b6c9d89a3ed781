package event

type rule struct {
	schema   func() any
	sanitize bool
}

// rules: payload schema per inbound event. Free-text events are sanitized;
// canvas and cursor payloads are relayed byte-for-byte.
var rules = map[string]rule{
	JoinRoom:          {schema: func() any { return &JoinPayload{} }, sanitize: true},
	LeaveRoom:         {schema: func() any { return &LeavePayload{} }, sanitize: true},
	CanvasUpdate:      {schema: func() any { return &CanvasUpdatePayload{} }},
	CursorMove:        {schema: func() any { return &ProjectPayload{} }},
	CursorHide:        {schema: func() any { return &ProjectPayload{} }},
	CommentAdd:        {schema: func() any { return &ProjectPayload{} }, sanitize: true},
	CommentUpdate:     {schema: func() any { return &ProjectPayload{} }, sanitize: true},
	CommentDelete:     {schema: func() any { return &ProjectPayload{} }, sanitize: true},
	CommentResolve:    {schema: func() any { return &ProjectPayload{} }, sanitize: true},
	ChatMessage:       {schema: func() any { return &ChatPayload{} }, sanitize: true},
	CanvasSyncRequest: {schema: func() any { return &ProjectPayload{} }},
}

// Known: reports whether t is an accepted inbound event
func Known(t string) bool {
	_, ok := rules[t]
	return ok
}

// ProjectPayload is the minimum every scoped event carries
type ProjectPayload struct {
	ProjectID string `json:"projectId" validate:"required,max=256"`
}

type JoinPayload struct {
	ProjectID string `json:"projectId" validate:"required,max=256"`
	UserID    string `json:"userId" validate:"required,max=256"`
	UserName  string `json:"userName" validate:"max=200"`
	Email     string `json:"email,omitempty" validate:"omitempty,max=320"`
	Color     string `json:"color,omitempty" validate:"omitempty,max=50"`
	Role      string `json:"role,omitempty" validate:"omitempty,max=32"`
}

type LeavePayload struct {
	ProjectID string `json:"projectId" validate:"required,max=256"`
	UserID    string `json:"userId" validate:"required,max=256"`
	UserName  string `json:"userName" validate:"max=200"`
}

// CanvasUpdatePayload: UpdateType is not restricted to add/update/delete,
// unknown types are relayed without touching the cache
type CanvasUpdatePayload struct {
	ProjectID  string         `json:"projectId" validate:"required,max=256"`
	UpdateType string         `json:"updateType" validate:"required,max=32"`
	ObjectType string         `json:"objectType,omitempty" validate:"max=64"`
	ObjectID   string         `json:"objectId,omitempty" validate:"required_if=UpdateType update,required_if=UpdateType delete,max=256"`
	Data       map[string]any `json:"data,omitempty" validate:"required_if=UpdateType add,required_if=UpdateType update"`
}

type ChatPayload struct {
	ProjectID string `json:"projectId" validate:"required,max=256"`
	UserName  string `json:"userName" validate:"max=200"`
}
