package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/filter"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
	"github.com/rs/xid"
)

var _ repository.DiagramRepository = (*DB)(nil)

const diagramColumns = `id, title, description, diagram_code, diagram_type, status,
	owner, created_by, is_public, is_template, folder_id, version, last_rendered,
	thumbnail, render_settings, created_at, updated_at`

// filterColumns maps filterable field names to SQL columns. Anything not in
// this map never reaches a query string.
var filterColumns = map[string]string{
	"status":       "status",
	"diagram_type": "diagram_type",
	"is_public":    "is_public",
	"folder":       "folder_id",
	"owner":        "owner",
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDiagram(s scanner) (*model.Diagram, error) {
	var (
		d            model.Diagram
		folderID     sql.NullString
		lastRendered sql.NullTime
	)
	err := s.Scan(
		&d.ID, &d.Title, &d.Description, &d.Code, &d.Type, &d.Status,
		&d.Owner, &d.CreatedBy, &d.IsPublic, &d.IsTemplate, &folderID, &d.Version, &lastRendered,
		&d.Thumbnail, &d.RenderSettings, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.FolderID = stringPtr(folderID)
	d.LastRendered = timePtr(lastRendered)
	return &d, nil
}

// Create inserts a new diagram and its tags. ID and timestamps are filled in
// on d.
func (db *DB) Create(ctx context.Context, d *model.Diagram) error {
	d.ID = xid.New().String()
	now := db.now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO diagrams (`+diagramColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Description, d.Code, d.Type, d.Status,
		d.Owner, d.CreatedBy, boolToInt(d.IsPublic), boolToInt(d.IsTemplate),
		nullString(d.FolderID), d.Version, nullTime(d.LastRendered),
		d.Thumbnail, d.RenderSettings, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating diagram: %w", err)
	}

	if len(d.Tags) > 0 {
		if err := db.ReplaceTags(ctx, d.ID, d.Tags); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a single diagram with its tags.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Diagram, error) {
	d, err := scanDiagram(db.conn.QueryRowContext(ctx,
		`SELECT `+diagramColumns+` FROM diagrams WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("diagram", id)
		}
		return nil, fmt.Errorf("sqlite: getting diagram %s: %w", id, err)
	}

	tags, err := db.loadTags(ctx, []string{d.ID})
	if err != nil {
		return nil, err
	}
	d.Tags = tags[d.ID]
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, nil
}

// List retrieves diagrams matching f, most recently modified first.
func (db *DB) List(ctx context.Context, f repository.DiagramFilter) ([]model.Diagram, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where, args, err := buildDiagramWhere(f, db.now())
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + diagramColumns + ` FROM diagrams`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing diagrams: %w", err)
	}
	defer rows.Close()

	diagrams := make([]model.Diagram, 0, limit)
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning diagram row: %w", err)
		}
		diagrams = append(diagrams, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating diagrams: %w", err)
	}
	// Tags are fetched after rows is drained: a ":memory:" pool has a single
	// connection, so a nested query here would deadlock.
	rows.Close()

	ids := make([]string, len(diagrams))
	for i := range diagrams {
		ids[i] = diagrams[i].ID
	}
	tags, err := db.loadTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range diagrams {
		diagrams[i].Tags = tags[diagrams[i].ID]
		if diagrams[i].Tags == nil {
			diagrams[i].Tags = []string{}
		}
	}

	return diagrams, nil
}

// buildDiagramWhere renders f as a parameterized WHERE clause (without the
// keyword). Column names only ever come from filterColumns.
func buildDiagramWhere(f repository.DiagramFilter, now any) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	switch {
	case f.Owner != "":
		vis := []string{"owner = ?"}
		args = append(args, f.Owner)
		if f.IncludePublic {
			vis = append(vis, "is_public = 1")
		}
		if f.SharedWith != "" {
			vis = append(vis, `id IN (SELECT diagram_id FROM diagram_shares
				WHERE shared_with = ? AND (expires_at IS NULL OR expires_at > ?))`)
			args = append(args, f.SharedWith, now)
		}
		clauses = append(clauses, "("+strings.Join(vis, " OR ")+")")
	case f.IncludePublic:
		clauses = append(clauses, "is_public = 1")
	}

	if f.FolderID != "" {
		clauses = append(clauses, "folder_id = ?")
		args = append(args, f.FolderID)
	}
	if f.IsTemplate != nil {
		clauses = append(clauses, "is_template = ?")
		args = append(args, boolToInt(*f.IsTemplate))
	}
	if f.SearchText != "" {
		like := "%" + f.SearchText + "%"
		clauses = append(clauses, "(title LIKE ? OR description LIKE ? OR diagram_code LIKE ?)")
		args = append(args, like, like, like)
	}

	for _, c := range f.Conditions {
		col, ok := filterColumns[c.Field]
		if !ok {
			return "", nil, apperror.ValidationFailed("filters", fmt.Sprintf("unknown filter field %q", c.Field))
		}
		switch c.Op {
		case filter.OpEq:
			clauses = append(clauses, col+" = ?")
			args = append(args, c.Value)
		case filter.OpNe:
			clauses = append(clauses, col+" != ?")
			args = append(args, c.Value)
		case filter.OpLike:
			clauses = append(clauses, col+" LIKE ?")
			args = append(args, c.Value)
		case filter.OpIn:
			list, _ := c.Value.([]any)
			if len(list) == 0 {
				return "", nil, apperror.ValidationFailed("filters", `operator "in" needs a non-empty list`)
			}
			clauses = append(clauses, col+" IN (?"+strings.Repeat(", ?", len(list)-1)+")")
			args = append(args, list...)
		default:
			return "", nil, apperror.ValidationFailed("filters", fmt.Sprintf("unsupported operator %q", c.Op))
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

// Update writes every mutable column of d and replaces its tags.
func (db *DB) Update(ctx context.Context, d *model.Diagram) error {
	d.UpdatedAt = db.now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE diagrams
		 SET title = ?, description = ?, diagram_code = ?, diagram_type = ?, status = ?,
		     owner = ?, is_public = ?, is_template = ?, folder_id = ?, version = ?,
		     last_rendered = ?, thumbnail = ?, render_settings = ?, updated_at = ?
		 WHERE id = ?`,
		d.Title, d.Description, d.Code, d.Type, d.Status,
		d.Owner, boolToInt(d.IsPublic), boolToInt(d.IsTemplate), nullString(d.FolderID), d.Version,
		nullTime(d.LastRendered), d.Thumbnail, d.RenderSettings, d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating diagram %s: %w", d.ID, err)
	}
	if err := rowsAffectedOrNotFound(result, apperror.NotFound("diagram", d.ID)); err != nil {
		return err
	}

	return db.ReplaceTags(ctx, d.ID, d.Tags)
}

// Delete removes a diagram. Versions, shares, comments and tags go with it
// through ON DELETE CASCADE.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting diagram %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(result, apperror.NotFound("diagram", id))
}

// MoveFolder reassigns every diagram in folder from to folder to in a single
// UPDATE and reports how many moved.
func (db *DB) MoveFolder(ctx context.Context, from string, to *string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE diagrams SET folder_id = ?, updated_at = ? WHERE folder_id = ?`,
		nullString(to), db.now(), from,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: moving diagrams from folder %s: %w", from, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// ReplaceTags swaps the diagram's tag set for tags inside one transaction.
func (db *DB) ReplaceTags(ctx context.Context, diagramID string, tags []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning tag update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM diagram_tags WHERE diagram_id = ?`, diagramID); err != nil {
		return fmt.Errorf("sqlite: clearing tags for %s: %w", diagramID, err)
	}
	for _, tag := range model.NormalizeTags(tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO diagram_tags (diagram_id, tag) VALUES (?, ?)`, diagramID, tag,
		); err != nil {
			return fmt.Errorf("sqlite: adding tag %q to %s: %w", tag, diagramID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing tags for %s: %w", diagramID, err)
	}
	return nil
}

// PopularTags returns the most used tags, most frequent first.
func (db *DB) PopularTags(ctx context.Context, limit int) ([]model.TagCount, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT tag, COUNT(*) AS n FROM diagram_tags
		 GROUP BY tag ORDER BY n DESC, tag ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing popular tags: %w", err)
	}
	defer rows.Close()

	out := make([]model.TagCount, 0, limit)
	for rows.Next() {
		var tc model.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return out, nil
}

// loadTags returns the tags of each diagram ID, in insertion order.
func (db *DB) loadTags(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT diagram_id, tag FROM diagram_tags
		 WHERE diagram_id IN (?`+strings.Repeat(", ?", len(ids)-1)+`)
		 ORDER BY rowid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		out[id] = append(out[id], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return out, nil
}
