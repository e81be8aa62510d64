package model

import "time"

// Version is an append-only snapshot of a diagram's source text, written
// whenever a save changes the code. Code holds the text as it was before
// that change.
type Version struct {
	ID            string    `json:"name"           db:"id"`
	DiagramID     string    `json:"diagram"        db:"diagram_id"`
	VersionNumber int       `json:"version_number" db:"version_number"`
	Code          string    `json:"diagram_code"   db:"diagram_code"`
	CreatedBy     string    `json:"created_by"     db:"created_by"`
	CreatedAt     time.Time `json:"created_on"     db:"created_at"`
	ChangeNotes   string    `json:"change_notes"   db:"change_notes"`
}
