// Package model defines the data structures used throughout the application.
// Structs here carry json tags for the HTTP layer and db tags naming the
// SQLite columns they map to.
package model

import (
	"strings"
	"time"
)

// DiagramType is the Mermaid diagram family, derived from the first token of
// the source text when the caller doesn't set one.
type DiagramType string

const (
	TypeFlowchart DiagramType = "flowchart"
	TypeSequence  DiagramType = "sequence"
	TypeClass     DiagramType = "class"
	TypeState     DiagramType = "state"
	TypeGantt     DiagramType = "gantt"
	TypePie       DiagramType = "pie"
	TypeOther     DiagramType = "other"
)

// Valid reports whether t is one of the known diagram types.
func (t DiagramType) Valid() bool {
	switch t {
	case TypeFlowchart, TypeSequence, TypeClass, TypeState, TypeGantt, TypePie, TypeOther:
		return true
	}
	return false
}

// typePrefixes is checked in order against the lower-cased, trimmed code.
// "graph " and "flowchart " keep their trailing space so that e.g.
// "graphql" is not mistaken for a flowchart.
var typePrefixes = []struct {
	prefix string
	kind   DiagramType
}{
	{"graph ", TypeFlowchart},
	{"flowchart ", TypeFlowchart},
	{"sequencediagram", TypeSequence},
	{"classdiagram", TypeClass},
	{"statediagram", TypeState},
	{"gantt", TypeGantt},
	{"pie", TypePie},
}

// DetectDiagramType infers the diagram type from Mermaid source text.
//
//	DetectDiagramType("graph TD; A-->B")  → flowchart
//	DetectDiagramType("sequenceDiagram")  → sequence
//	DetectDiagramType("hello")            → other
func DetectDiagramType(code string) DiagramType {
	normalized := strings.ToLower(strings.TrimSpace(code))
	for _, p := range typePrefixes {
		if strings.HasPrefix(normalized, p.prefix) {
			return p.kind
		}
	}
	return TypeOther
}

// DiagramStatus is the editorial state of a diagram.
type DiagramStatus string

const (
	StatusDraft     DiagramStatus = "draft"
	StatusPublished DiagramStatus = "published"
	StatusArchived  DiagramStatus = "archived"
)

func (s DiagramStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Diagram is a Mermaid document.
//
// Version counts the snapshots in the diagram's history: a brand new diagram
// is at version 0, and every save that changes Code bumps it by one and
// appends a Version row.
type Diagram struct {
	ID             string        `json:"name"            db:"id"`
	Title          string        `json:"title"           db:"title"`
	Description    string        `json:"description"     db:"description"`
	Code           string        `json:"diagram_code"    db:"diagram_code"`
	Type           DiagramType   `json:"diagram_type"    db:"diagram_type"`
	Status         DiagramStatus `json:"status"          db:"status"`
	Owner          string        `json:"owner"           db:"owner"`
	CreatedBy      string        `json:"created_by"      db:"created_by"`
	IsPublic       bool          `json:"is_public"       db:"is_public"`
	IsTemplate     bool          `json:"is_template"     db:"is_template"`
	FolderID       *string       `json:"folder"          db:"folder_id"`
	Version        int           `json:"version"         db:"version"`
	LastRendered   *time.Time    `json:"last_rendered"   db:"last_rendered"`
	Thumbnail      string        `json:"thumbnail"       db:"thumbnail"`
	RenderSettings string        `json:"render_settings" db:"render_settings"`
	Tags           []string      `json:"tags"`
	CreatedAt      time.Time     `json:"creation"        db:"created_at"`
	UpdatedAt      time.Time     `json:"modified"        db:"updated_at"`
}

// DiagramSummary is the trimmed row returned by list endpoints.
type DiagramSummary struct {
	ID        string        `json:"name"`
	Title     string        `json:"title"`
	Type      DiagramType   `json:"diagram_type"`
	Status    DiagramStatus `json:"status"`
	IsPublic  bool          `json:"is_public"`
	UpdatedAt time.Time     `json:"modified"`
	Owner     string        `json:"owner"`
	Version   int           `json:"version"`
	Thumbnail string        `json:"thumbnail"`
}

// Summary projects a Diagram down to its list-view fields.
func (d *Diagram) Summary() DiagramSummary {
	return DiagramSummary{
		ID:        d.ID,
		Title:     d.Title,
		Type:      d.Type,
		Status:    d.Status,
		IsPublic:  d.IsPublic,
		UpdatedAt: d.UpdatedAt,
		Owner:     d.Owner,
		Version:   d.Version,
		Thumbnail: d.Thumbnail,
	}
}

// NormalizeTag lower-cases and trims a tag.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags normalizes every tag, dropping blanks and duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = NormalizeTag(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// TagCount is one row of the popular-tags report.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
