package model

import (
	"encoding/json"
	"time"
)

// ActiveUser is one entry of a diagram's active-user list.
type ActiveUser struct {
	User       string    `json:"user"`
	FullName   string    `json:"full_name"`
	LastActive time.Time `json:"last_active"`
}

// CursorPosition is a user's last reported cursor in the editor.
type CursorPosition struct {
	Position  json.RawMessage `json:"position"`
	Timestamp time.Time       `json:"timestamp"`
	User      string          `json:"user"`
	FullName  string          `json:"full_name"`
}

// EditingSession marks that a user claimed the editor at Timestamp.
type EditingSession struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	FullName  string    `json:"full_name"`
}

// SessionResult is returned by start/end editing session. A refused start is
// reported with Success=false rather than as an error.
type SessionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
