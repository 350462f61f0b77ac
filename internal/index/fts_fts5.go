//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// steps_fts mirrors the searchable columns of steps. Column 3 (body) feeds
// the snippet.
const ftsSchemaSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS steps_fts USING fts5(
	slug UNINDEXED,
	title,
	message,
	body,
	tokenize = 'unicode61 remove_diacritics 2'
);
`

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(ftsSchemaSQL)
	return err
}

func ftsUpsert(tx *sql.Tx, slug, title, message, body string) error {
	ftsDelete(tx, slug)
	if _, err := tx.Exec(`INSERT INTO steps_fts (slug, title, message, body) VALUES (?, ?, ?, ?)`,
		slug, title, message, body); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, slug string) {
	_, _ = tx.Exec(`DELETE FROM steps_fts WHERE slug = ?`, slug)
}

// matchExpr quotes every word so that user input such as "go-git" or
// "a:b" is never parsed as FTS5 query syntax. Quoted words are ANDed.
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// Search ranks steps by FTS5 relevance and highlights matches in the body.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT f.slug, s.position, s.title,
		       snippet(steps_fts, 3, '<b>', '</b>', '...', 24)
		FROM steps_fts f
		JOIN steps s ON s.slug = f.slug
		WHERE steps_fts MATCH ?
		ORDER BY bm25(steps_fts, 0, 10.0, 2.0, 1.0), s.position
		LIMIT ?
	`, matchExpr(terms), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectResults(rows, nil)
}
