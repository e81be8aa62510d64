package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
	"github.com/rs/xid"
)

var _ repository.VersionRepository = (*DB)(nil)

const versionColumns = `id, diagram_id, version_number, diagram_code, created_by, created_at, change_notes`

func scanVersion(s scanner) (*model.Version, error) {
	var v model.Version
	if err := s.Scan(&v.ID, &v.DiagramID, &v.VersionNumber, &v.Code, &v.CreatedBy, &v.CreatedAt, &v.ChangeNotes); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVersion appends a snapshot. (diagram_id, version_number) is UNIQUE,
// so a second write of the same number fails with ErrConflict.
func (db *DB) CreateVersion(ctx context.Context, v *model.Version) error {
	v.ID = xid.New().String()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = db.now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO diagram_versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DiagramID, v.VersionNumber, v.Code, v.CreatedBy, v.CreatedAt, v.ChangeNotes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("version", fmt.Sprintf("%s#%d", v.DiagramID, v.VersionNumber))
		}
		return fmt.Errorf("sqlite: creating version: %w", err)
	}
	return nil
}

func (db *DB) GetVersion(ctx context.Context, id string) (*model.Version, error) {
	v, err := scanVersion(db.conn.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("version", id)
		}
		return nil, fmt.Errorf("sqlite: getting version %s: %w", id, err)
	}
	return v, nil
}

// ListVersions returns every snapshot of a diagram, newest first.
func (db *DB) ListVersions(ctx context.Context, diagramID string) ([]model.Version, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions
		 WHERE diagram_id = ? ORDER BY version_number DESC`,
		diagramID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing versions of %s: %w", diagramID, err)
	}
	defer rows.Close()

	versions := []model.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning version row: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating versions: %w", err)
	}
	return versions, nil
}

func (db *DB) PreviousVersion(ctx context.Context, diagramID string, number int) (*model.Version, error) {
	v, err := scanVersion(db.conn.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions
		 WHERE diagram_id = ? AND version_number < ?
		 ORDER BY version_number DESC LIMIT 1`,
		diagramID, number,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.Missing("no prior version to compare with")
		}
		return nil, fmt.Errorf("sqlite: finding version before %d of %s: %w", number, diagramID, err)
	}
	return v, nil
}

func (db *DB) CountVersions(ctx context.Context, diagramID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diagram_versions WHERE diagram_id = ?`, diagramID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting versions of %s: %w", diagramID, err)
	}
	return n, nil
}
