package user

import "strings"

const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"

	// UnknownName is reported in leave notices for channels that joined without a name
	UnknownName = "Unknown User"
)

// Participant is one entry in a room's presence list
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Color    string `json:"color"`
	Role     string `json:"role"`
	IsOnline bool   `json:"isOnline"`
}

// Identity is what a channel learns about its user when it joins a room
type Identity struct {
	ProjectID string
	UserID    string
	UserName  string
}

// Joined: reports whether the identity was bound by a join
func (id Identity) Joined() bool {
	return id.ProjectID != "" && id.UserID != ""
}

// DisplayName: name used in leave notices
func (id Identity) DisplayName() string {
	if strings.TrimSpace(id.UserName) == "" {
		return UnknownName
	}
	return id.UserName
}

// NormalizeRole: lowercases known roles, defaults empty role to editor.
// Unknown roles are kept as sent.
func NormalizeRole(role string) string {
	trimmed := strings.TrimSpace(role)
	switch strings.ToLower(trimmed) {
	case "":
		return RoleEditor
	case RoleOwner:
		return RoleOwner
	case RoleEditor:
		return RoleEditor
	case RoleViewer:
		return RoleViewer
	default:
		return trimmed
	}
}

// DefaultEmail: placeholder address for participants that did not send one
func DefaultEmail(name string) string {
	return name + "@example.com"
}
