package model

import "time"

// StoredFile is the ownership record of an object in the file store. Files
// are private: only Owner and administrators may read them back.
type StoredFile struct {
	URL         string    `json:"file_url"`
	Name        string    `json:"file_name"`
	Owner       string    `json:"owner"`
	DiagramID   *string   `json:"diagram,omitempty"` // set for exports
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// CanRead reports whether caller may download or import the file.
func (f *StoredFile) CanRead(caller Caller) bool {
	return caller.Admin || (caller.UserID != "" && caller.UserID == f.Owner)
}
