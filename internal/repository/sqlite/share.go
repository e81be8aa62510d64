package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
	"github.com/rs/xid"
)

var _ repository.ShareRepository = (*DB)(nil)

const shareColumns = `id, diagram_id, shared_with, permission_level, expires_at, share_token, created_by, created_at`

func scanShare(s scanner) (*model.Share, error) {
	var (
		sh        model.Share
		expiresAt sql.NullTime
	)
	if err := s.Scan(&sh.ID, &sh.DiagramID, &sh.SharedWith, &sh.PermissionLevel, &expiresAt,
		&sh.Token, &sh.CreatedBy, &sh.CreatedAt); err != nil {
		return nil, err
	}
	sh.ExpiresAt = timePtr(expiresAt)
	return &sh, nil
}

func (db *DB) queryShares(ctx context.Context, query string, args ...any) ([]model.Share, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying shares: %w", err)
	}
	defer rows.Close()

	shares := []model.Share{}
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning share row: %w", err)
		}
		shares = append(shares, *sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating shares: %w", err)
	}
	return shares, nil
}

// CreateShare inserts a share. A token collision is reported as
// repository.ErrDuplicateToken so the caller can mint a new one and retry.
func (db *DB) CreateShare(ctx context.Context, s *model.Share) error {
	s.ID = xid.New().String()
	s.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO diagram_shares (`+shareColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DiagramID, s.SharedWith, s.PermissionLevel, nullTime(s.ExpiresAt),
		s.Token, s.CreatedBy, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateToken
		}
		return fmt.Errorf("sqlite: creating share: %w", err)
	}
	return nil
}

func (db *DB) GetShare(ctx context.Context, id string) (*model.Share, error) {
	sh, err := scanShare(db.conn.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM diagram_shares WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("share", id)
		}
		return nil, fmt.Errorf("sqlite: getting share %s: %w", id, err)
	}
	return sh, nil
}

func (db *DB) GetShareByToken(ctx context.Context, token string) (*model.Share, error) {
	sh, err := scanShare(db.conn.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM diagram_shares WHERE share_token = ?`, token,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.InvalidShareToken()
		}
		return nil, fmt.Errorf("sqlite: getting share by token: %w", err)
	}
	return sh, nil
}

func (db *DB) TokenExists(ctx context.Context, token string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diagram_shares WHERE share_token = ?`, token,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking share token: %w", err)
	}
	return n > 0, nil
}

func (db *DB) FindShareFor(ctx context.Context, diagramID, email string) ([]model.Share, error) {
	return db.queryShares(ctx,
		`SELECT `+shareColumns+` FROM diagram_shares
		 WHERE diagram_id = ? AND shared_with = ? ORDER BY created_at DESC`,
		diagramID, email,
	)
}

func (db *DB) ListShares(ctx context.Context, diagramID string) ([]model.Share, error) {
	return db.queryShares(ctx,
		`SELECT `+shareColumns+` FROM diagram_shares
		 WHERE diagram_id = ? ORDER BY created_at DESC, id DESC`,
		diagramID,
	)
}

func (db *DB) DeleteShare(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM diagram_shares WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting share %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(result, apperror.NotFound("share", id))
}

// DeleteExpiredBefore removes shares whose expiry lies before t.
// Every timestamp is written in UTC, so comparing the stored text orders
// correctly.
func (db *DB) DeleteExpiredBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM diagram_shares WHERE expires_at IS NOT NULL AND expires_at < ?`,
		t.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired shares: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
