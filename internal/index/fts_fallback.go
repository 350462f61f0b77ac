//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the steps table is searched directly, so there is no
// secondary table to maintain.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches steps whose title, commit message or body contains every
// word of query, case-insensitively for ASCII. Hits come back in book order.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, t := range terms {
		p := "%" + likeEscaper.Replace(t) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR commit_message LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	args = append(args, clampLimit(limit))

	rows, err := db.conn.Query(`SELECT slug, position, title, body FROM steps WHERE `+
		strings.Join(where, " AND ")+` ORDER BY position LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectResults(rows, func(r *SearchResult) {
		r.Snippet = excerpt(r.Snippet, terms[0])
	})
}
