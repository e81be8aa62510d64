// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// One *DB satisfies every repository interface (diagrams, folders, versions,
// shares, comments, users, stored files). Services receive it through the narrow interface
// they need, so tests can swap any of them for an in-memory fake.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without CGo and ":memory:" databases make repository tests self-contained.
//
// The pattern for every query is the database/sql one:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryContext / db.ExecContext     → runs queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/mermaid.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (great for tests, lost on close)
//
// PRAGMAS IN THE DSN:
// A PRAGMA run through conn.Exec only configures whichever pooled connection
// happened to run it. Passing them as _pragma DSN parameters makes modernc
// apply them to every connection the pool opens, which matters for
// foreign_keys: ON DELETE CASCADE silently does nothing on a connection where
// it is off.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database. Pinning
	// the pool to one connection keeps all queries on the migrated one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, now: func() time.Time { return time.Now().UTC() }}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is safe to re-run; later column additions go
// through addColumnIfNotExists so old database files upgrade in place.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER NOT NULL UNIQUE,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	if err := db.addColumnIfNotExists("users", "name", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding name to users: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "role", "TEXT NOT NULL DEFAULT 'user'"); err != nil {
		return fmt.Errorf("adding role to users: %w", err)
	}

	// Folders form a forest. Deleting a folder re-roots its children.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS folders (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			parent_id  TEXT REFERENCES folders(id) ON DELETE SET NULL,
			owner      TEXT NOT NULL DEFAULT '',
			is_public  INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_folders_parent_id ON folders(parent_id);
	`)
	if err != nil {
		return fmt.Errorf("creating folders table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS diagrams (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			diagram_code    TEXT NOT NULL DEFAULT '',
			diagram_type    TEXT NOT NULL DEFAULT 'other',
			status          TEXT NOT NULL DEFAULT 'draft',
			owner           TEXT NOT NULL DEFAULT '',
			created_by      TEXT NOT NULL DEFAULT '',
			is_public       INTEGER NOT NULL DEFAULT 0,
			is_template     INTEGER NOT NULL DEFAULT 0,
			folder_id       TEXT REFERENCES folders(id) ON DELETE SET NULL,
			version         INTEGER NOT NULL DEFAULT 0,
			last_rendered   DATETIME,
			thumbnail       TEXT NOT NULL DEFAULT '',
			render_settings TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL,
			updated_at      DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_diagrams_owner ON diagrams(owner);
		CREATE INDEX IF NOT EXISTS idx_diagrams_folder_id ON diagrams(folder_id);
		CREATE INDEX IF NOT EXISTS idx_diagrams_updated_at ON diagrams(updated_at);

		CREATE TABLE IF NOT EXISTS diagram_tags (
			diagram_id TEXT NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
			tag        TEXT NOT NULL,
			PRIMARY KEY (diagram_id, tag)
		);
		CREATE INDEX IF NOT EXISTS idx_diagram_tags_tag ON diagram_tags(tag);
	`)
	if err != nil {
		return fmt.Errorf("creating diagrams tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS diagram_versions (
			id             TEXT PRIMARY KEY,
			diagram_id     TEXT NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			diagram_code   TEXT NOT NULL DEFAULT '',
			created_by     TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL,
			change_notes   TEXT NOT NULL DEFAULT '',
			UNIQUE (diagram_id, version_number)
		);

		CREATE TABLE IF NOT EXISTS diagram_shares (
			id               TEXT PRIMARY KEY,
			diagram_id       TEXT NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
			shared_with      TEXT NOT NULL,
			permission_level TEXT NOT NULL DEFAULT 'read',
			expires_at       DATETIME,
			share_token      TEXT NOT NULL UNIQUE,
			created_by       TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_diagram_shares_diagram ON diagram_shares(diagram_id, shared_with);

		CREATE TABLE IF NOT EXISTS diagram_comments (
			id         TEXT PRIMARY KEY,
			diagram_id TEXT NOT NULL REFERENCES diagrams(id) ON DELETE CASCADE,
			owner      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			position   TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_diagram_comments_diagram ON diagram_comments(diagram_id);

		CREATE TABLE IF NOT EXISTS files (
			url          TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			owner        TEXT NOT NULL,
			diagram_id   TEXT REFERENCES diagrams(id) ON DELETE SET NULL,
			content_type TEXT NOT NULL DEFAULT '',
			size         INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner);
	`)
	if err != nil {
		return fmt.Errorf("creating diagram child tables: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// ALTER TABLE migrations can therefore run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// modernc returns *sqlite.Error whose text carries the constraint name; the
// message check keeps this package free of the driver's internal codes.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rowsAffectedOrNotFound turns a zero-row UPDATE/DELETE into notFound.
func rowsAffectedOrNotFound(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
