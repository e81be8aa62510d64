package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

var _ repository.FileRepository = (*DB)(nil)

const fileColumns = `url, name, owner, diagram_id, content_type, size, created_at`

func (db *DB) CreateFile(ctx context.Context, f *model.StoredFile) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.URL, f.Name, f.Owner, nullString(f.DiagramID), f.ContentType, f.Size, f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("file", f.URL)
		}
		return fmt.Errorf("sqlite: recording file %s: %w", f.URL, err)
	}
	return nil
}

func (db *DB) GetFile(ctx context.Context, url string) (*model.StoredFile, error) {
	var (
		f         model.StoredFile
		diagramID sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE url = ?`, url,
	).Scan(&f.URL, &f.Name, &f.Owner, &diagramID, &f.ContentType, &f.Size, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("file", url)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", url, err)
	}
	f.DiagramID = stringPtr(diagramID)
	return &f, nil
}
