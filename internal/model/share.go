package model

import "time"

// PermissionLevel is the access a share grants. Levels are ordered:
// read < write < admin.
type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
)

func (p PermissionLevel) rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

// Valid reports whether p is a known level.
func (p PermissionLevel) Valid() bool {
	return p.rank() > 0
}

// Allows reports whether holding p is enough for an operation needing required.
func (p PermissionLevel) Allows(required PermissionLevel) bool {
	return p.rank() > 0 && p.rank() >= required.rank()
}

// Share grants SharedWith access to a diagram until ExpiresAt (nil = forever).
// Token is unique across all shares and doubles as a public link.
type Share struct {
	ID              string          `json:"name"             db:"id"`
	DiagramID       string          `json:"diagram"          db:"diagram_id"`
	SharedWith      string          `json:"shared_with"      db:"shared_with"`
	PermissionLevel PermissionLevel `json:"permission_level" db:"permission_level"`
	ExpiresAt       *time.Time      `json:"expires_on"       db:"expires_at"`
	Token           string          `json:"share_token"      db:"share_token"`
	CreatedBy       string          `json:"created_by"       db:"created_by"`
	CreatedAt       time.Time       `json:"creation"         db:"created_at"`
}

// IsExpired reports whether the share's expiry lies before now.
func (s *Share) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// AccessLevel returns the granted level, or "" once the share has expired.
func (s *Share) AccessLevel(now time.Time) PermissionLevel {
	if s.IsExpired(now) {
		return ""
	}
	return s.PermissionLevel
}

// SharedDiagram is a diagram opened through a share token, annotated with
// the level the token grants.
type SharedDiagram struct {
	*Diagram
	PermissionLevel PermissionLevel `json:"permission_level"`
}
