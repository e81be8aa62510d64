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

var _ repository.FolderRepository = (*DB)(nil)

const folderColumns = `id, name, parent_id, owner, is_public, created_at, updated_at`

func scanFolder(s scanner) (*model.Folder, error) {
	var (
		f        model.Folder
		parentID sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &parentID, &f.Owner, &f.IsPublic, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.ParentID = stringPtr(parentID)
	return &f, nil
}

func (db *DB) CreateFolder(ctx context.Context, f *model.Folder) error {
	f.ID = xid.New().String()
	now := db.now()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, nullString(f.ParentID), f.Owner, boolToInt(f.IsPublic), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating folder: %w", err)
	}
	return nil
}

func (db *DB) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := scanFolder(db.conn.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("folder", id)
		}
		return nil, fmt.Errorf("sqlite: getting folder %s: %w", id, err)
	}
	return f, nil
}

func (db *DB) ListFolders(ctx context.Context, f repository.FolderFilter) ([]model.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE `
	var args []any
	if f.ParentID == "" {
		query += `parent_id IS NULL`
	} else {
		query += `parent_id = ?`
		args = append(args, f.ParentID)
	}
	switch {
	case f.All:
	case f.Owner != "":
		query += ` AND (owner = ? OR is_public = 1)`
		args = append(args, f.Owner)
	default:
		query += ` AND is_public = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folders: %w", err)
	}
	defer rows.Close()

	folders := []model.Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder row: %w", err)
		}
		folders = append(folders, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating folders: %w", err)
	}
	return folders, nil
}

func (db *DB) UpdateFolder(ctx context.Context, f *model.Folder) error {
	f.UpdatedAt = db.now()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE folders SET name = ?, parent_id = ?, is_public = ?, updated_at = ? WHERE id = ?`,
		f.Name, nullString(f.ParentID), boolToInt(f.IsPublic), f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating folder %s: %w", f.ID, err)
	}
	return rowsAffectedOrNotFound(result, apperror.NotFound("folder", f.ID))
}

// DeleteFolder removes a folder. Its diagrams drop to no folder and its
// subfolders become top-level (ON DELETE SET NULL).
func (db *DB) DeleteFolder(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting folder %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(result, apperror.NotFound("folder", id))
}
