// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, checks permissions, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take a model.Caller plus primitives or small input structs, never
// *http.Request, so the same rules apply to HTTP handlers, the cron sweep and
// tests alike. They return apperror values for anything the caller did wrong
// and wrapped errors for infrastructure failures; the handler maps both.
//
// Every service depends on repository INTERFACES. main.go passes the single
// *sqlite.DB for all of them; tests pass in-memory fakes or a ":memory:" DB.
package service

import "time"

// Validation limits and paging defaults.
const (
	MaxTitleLength   = 140
	MaxCodeLength    = 100000 // ~100KB of diagram source
	MaxCommentLength = 5000
	MaxFolderName    = 140
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Collaboration windows.
const (
	CursorStaleAfter  = 60 * time.Second
	SessionStaleAfter = 300 * time.Second
)

// clock is injected so tests can control time.
type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
