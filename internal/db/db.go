// Package db provides SQLite database operations for tend.
//
// The database is stored at ~/.tend/tend.db by default.
// Use Open() to connect and Init() to create the schema.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/baiirun/tend/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	recurrence_rule TEXT,
	recurrence_days TEXT,
	recurrence_months TEXT,
	recurrence_time TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS item_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id INTEGER NOT NULL REFERENCES items(id),
	to_id INTEGER NOT NULL REFERENCES items(id),
	link_type TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (from_id, to_id, link_type)
);

CREATE TABLE IF NOT EXISTS routine_completions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	routine_id INTEGER NOT NULL REFERENCES items(id),
	completed_date TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	completed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (routine_id, completed_date)
);

CREATE TABLE IF NOT EXISTS routine_skips (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	routine_id INTEGER NOT NULL REFERENCES items(id),
	skip_date TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	skipped_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (routine_id, skip_date)
);

CREATE TABLE IF NOT EXISTS activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id INTEGER NOT NULL REFERENCES items(id),
	action TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_type ON items(item_type);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_links_to ON item_links(to_id, link_type);
CREATE INDEX IF NOT EXISTS idx_activity_item ON activity(item_id);
`

var (
	ErrNotFound = model.ErrNotFound
	ErrConflict = model.ErrConflict
)

// querier is the subset of *sql.DB and *sql.Tx used by the store methods.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a SQL database connection with tend-specific operations.
// A DB returned to an InTx callback runs every method inside that
// transaction.
type DB struct {
	*sql.DB
	q  querier
	tx *sql.Tx
}

// DefaultPath returns the default database path (~/.tend/tend.db)
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tend", "tend.db"), nil
}

// Open opens or creates the database at the given path
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps pragmas and
	// transactions on the same handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{DB: db, q: db}, nil
}

// Init creates the schema.
func (db *DB) Init() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction. The *DB passed to fn routes every
// query through the transaction; it is committed when fn returns nil and
// rolled back otherwise. Nested calls reuse the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx *DB) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&DB{DB: db.DB, q: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
