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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts or updates a user based on their GitHub ID.
//
// The row is looked up by github_id first so a returning user KEEPS their
// internal ID; diagrams, shares and comments point at that ID. The profile
// fields (login, email, name, avatar) are refreshed on every login in case
// they changed on GitHub. The role is written only on insert, or when the
// caller explicitly asks for admin, so a role granted through SetRole
// survives later logins.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var existingID, existingRole string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, role FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &existingRole)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	now := db.now()

	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = now
		if user.Role != model.RoleAdmin {
			user.Role = existingRole
		}
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, name = ?, avatar_url = ?, role = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.Name,
			user.AvatarURL,
			user.Role,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return db.fillCreatedAt(ctx, user)
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, name, avatar_url, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.Name,
		user.AvatarURL,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}

func (db *DB) fillCreatedAt(ctx context.Context, user *model.User) error {
	err := db.conn.QueryRowContext(ctx,
		`SELECT created_at FROM users WHERE id = ?`, user.ID,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading user %s: %w", user.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, name, avatar_url, role, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.GitHubID,
		&u.Login,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// SetRole changes a user's role.
func (db *DB) SetRole(ctx context.Context, id, role string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, db.now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role of user %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(result, apperror.NotFound("user", id))
}
