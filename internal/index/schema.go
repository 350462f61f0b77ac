// Package index keeps a SQLite copy of a built book's steps for listing and
// search. Full-text search uses FTS5 when built with the sqlite_fts5 tag.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS steps (
		slug           TEXT PRIMARY KEY,
		position       INTEGER NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		commit_hash    TEXT NOT NULL DEFAULT '',
		commit_message TEXT NOT NULL DEFAULT '',
		body           TEXT NOT NULL DEFAULT '',
		checksum       TEXT NOT NULL DEFAULT '',
		has_output     INTEGER NOT NULL DEFAULT 0,
		synthetic      INTEGER NOT NULL DEFAULT 0,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_steps_position ON steps(position);`,

	`CREATE INDEX IF NOT EXISTS idx_steps_commit ON steps(commit_hash);`,
}

// DB is an open step index.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the index at path and brings its schema up to date.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// One writer avoids SQLITE_BUSY between Sync and concurrent readers.
	conn.SetMaxOpenConns(1)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("index: schema version %d is newer than this binary (%d)", version, len(migrations))
	}
	for i := version; i < len(migrations); i++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("index: begin migration: %w", err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("index: migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("index: set schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
