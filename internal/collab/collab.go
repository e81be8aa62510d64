// Package collab stores ephemeral collaboration state: who is looking at a
// diagram, where their cursors are and who holds the editing session.
//
// State is kept per diagram as whole JSON values. Callers read a value,
// change it and write it back; two concurrent writers can overwrite each
// other. That is acceptable for presence hints that refresh every few
// seconds, and it keeps the store trivially swappable.
package collab

import (
	"context"
	"errors"

	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
)

// Hash keys. The field inside each hash is the diagram ID.
const (
	ActiveUsersKey     = "mermaid:active_users"
	CursorsKey         = "mermaid:cursors"
	EditingSessionsKey = "mermaid:editing_sessions"
)

// ErrUnavailable wraps backend failures so the service can tell a cache
// outage from bad input.
var ErrUnavailable = errors.New("collab: store unavailable")

// Store reads and writes the per-diagram collaboration values. Getters
// return an empty value (never nil) when nothing is stored yet.
type Store interface {
	ActiveUsers(ctx context.Context, diagramID string) ([]model.ActiveUser, error)
	SetActiveUsers(ctx context.Context, diagramID string, users []model.ActiveUser) error

	Cursors(ctx context.Context, diagramID string) (map[string]model.CursorPosition, error)
	SetCursors(ctx context.Context, diagramID string, cursors map[string]model.CursorPosition) error

	EditingSessions(ctx context.Context, diagramID string) (map[string]model.EditingSession, error)
	SetEditingSessions(ctx context.Context, diagramID string, sessions map[string]model.EditingSession) error

	// Forget drops every value stored for a diagram.
	Forget(ctx context.Context, diagramID string) error
	Ping(ctx context.Context) error
}

// hashBackend is the minimal hash API both stores are built on.
type hashBackend interface {
	hget(ctx context.Context, key, field string) ([]byte, bool, error)
	hset(ctx context.Context, key, field string, value []byte) error
	hdel(ctx context.Context, key, field string) error
	ping(ctx context.Context) error
}
