package index

import (
	"database/sql"
	"strings"
	"unicode/utf8"
)

const (
	defaultSearchLimit = 20
	snippetRadius      = 80
)

// searchTerms splits a free-form query into the words every hit must contain.
func searchTerms(query string) []string {
	return strings.Fields(query)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return limit
}

// excerpt returns the part of text around the first occurrence of term,
// trimmed on rune boundaries. The head of text is returned when term is absent.
func excerpt(text, term string) string {
	at := strings.Index(strings.ToLower(text), strings.ToLower(term))
	if at < 0 {
		at = 0
	}
	start := max(at-snippetRadius, 0)
	end := min(at+len(term)+snippetRadius, len(text))
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	s := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(text) {
		s += "..."
	}
	return s
}

func collectResults(rows *sql.Rows, snippet func(*SearchResult)) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Slug, &r.Position, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		if snippet != nil {
			snippet(&r)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
