package model

import (
	"encoding/json"
	"time"
)

// Comment is a note left on a diagram. Position is an opaque client-side
// anchor (e.g. {"x":10,"y":20} or a node id) and may be absent.
type Comment struct {
	ID        string          `json:"name"      db:"id"`
	DiagramID string          `json:"diagram"   db:"diagram_id"`
	Owner     string          `json:"owner"     db:"owner"`
	Content   string          `json:"content"   db:"content"`
	Position  json.RawMessage `json:"position"  db:"position"`
	CreatedAt time.Time       `json:"creation"  db:"created_at"`
}
