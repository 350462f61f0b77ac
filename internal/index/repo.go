package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/commitbook/internal/apperr"
)

// StepRow represents a row in the steps table.
type StepRow struct {
	Slug          string    `json:"slug"`
	Position      int       `json:"position"`
	Title         string    `json:"title"`
	Commit        string    `json:"commit"`
	CommitMessage string    `json:"commitMessage"`
	Checksum      string    `json:"checksum"`
	HasOutput     bool      `json:"hasOutput"`
	Synthetic     bool      `json:"synthetic"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Slug     string `json:"slug"`
	Position int    `json:"position"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// UpsertStep inserts or replaces a step and its FTS entry within a transaction.
func (db *DB) UpsertStep(s StepRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO steps (slug, position, title, commit_hash, commit_message, body, checksum, has_output, synthetic, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			position       = excluded.position,
			title          = excluded.title,
			commit_hash    = excluded.commit_hash,
			commit_message = excluded.commit_message,
			body           = excluded.body,
			checksum       = excluded.checksum,
			has_output     = excluded.has_output,
			synthetic      = excluded.synthetic,
			updated_at     = excluded.updated_at
	`, s.Slug, s.Position, s.Title, s.Commit, s.CommitMessage, body, s.Checksum, s.HasOutput, s.Synthetic, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert step: %w", err)
	}

	// No-op unless built with the sqlite_fts5 tag.
	if err := ftsUpsert(tx, s.Slug, s.Title, s.CommitMessage, body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteStep removes a step and its FTS entry.
func (db *DB) DeleteStep(slug string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, slug)
	if _, err := tx.Exec(`DELETE FROM steps WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("index: delete step: %w", err)
	}
	return tx.Commit()
}

const stepColumns = `slug, position, title, commit_hash, commit_message, checksum, has_output, synthetic, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStep(sc scanner) (StepRow, error) {
	var s StepRow
	err := sc.Scan(&s.Slug, &s.Position, &s.Title, &s.Commit, &s.CommitMessage,
		&s.Checksum, &s.HasOutput, &s.Synthetic, &s.UpdatedAt)
	return s, err
}

// GetStep returns the indexed step with the given slug.
func (db *DB) GetStep(slug string) (*StepRow, error) {
	s, err := scanStep(db.conn.QueryRow(`SELECT `+stepColumns+` FROM steps WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: step %s: %w", slug, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get step: %w", err)
	}
	return &s, nil
}

// ListSteps returns every indexed step ordered by position.
func (db *DB) ListSteps() ([]StepRow, error) {
	rows, err := db.conn.Query(`SELECT ` + stepColumns + ` FROM steps ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("index: list steps: %w", err)
	}
	defer rows.Close()

	out := []StepRow{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllChecksums returns slug → checksum for every indexed step.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT slug, checksum FROM steps`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var slug, cs string
		if err := rows.Scan(&slug, &cs); err != nil {
			return nil, err
		}
		out[slug] = cs
	}
	return out, rows.Err()
}
