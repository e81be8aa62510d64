package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
	"github.com/rs/xid"
)

var _ repository.CommentRepository = (*DB)(nil)

const commentColumns = `id, diagram_id, owner, content, position, created_at`

func scanComment(s scanner) (*model.Comment, error) {
	var (
		c        model.Comment
		position string
	)
	if err := s.Scan(&c.ID, &c.DiagramID, &c.Owner, &c.Content, &position, &c.CreatedAt); err != nil {
		return nil, err
	}
	if position != "" {
		c.Position = json.RawMessage(position)
	}
	return &c, nil
}

func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	c.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO diagram_comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DiagramID, c.Owner, c.Content, string(c.Position), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating comment: %w", err)
	}
	return nil
}

func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.conn.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM diagram_comments WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return c, nil
}

// ListComments returns a diagram's comments, newest first.
func (db *DB) ListComments(ctx context.Context, diagramID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM diagram_comments
		 WHERE diagram_id = ? ORDER BY created_at DESC, id DESC`,
		diagramID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of %s: %w", diagramID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

func (db *DB) DeleteComment(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM diagram_comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(result, apperror.NotFound("comment", id))
}
