package model

import "time"

// Folder groups diagrams. ParentID is nil for top-level folders; the parent
// chain must never loop back on itself.
type Folder struct {
	ID        string    `json:"name"          db:"id"`
	Name      string    `json:"folder_name"   db:"name"`
	ParentID  *string   `json:"parent_folder" db:"parent_id"`
	Owner     string    `json:"owner"         db:"owner"`
	IsPublic  bool      `json:"is_public"     db:"is_public"`
	CreatedAt time.Time `json:"creation"      db:"created_at"`
	UpdatedAt time.Time `json:"modified"      db:"updated_at"`
}
