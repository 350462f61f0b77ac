// Package parser extracts frontmatter, headings, and sections from Markdown content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// A closing run of #s only counts when whitespace separates it from the
	// text, so "# Learning C#" keeps its trailing #.
	h1Re    = regexp.MustCompile(`^#[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	fenceRe = regexp.MustCompile("^[ \t]{0,3}(```|~~~)")
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
}

// Section is one H1-delimited part of a combined narrative document.
type Section struct {
	Title string
	Body  string
}

// Parse extracts frontmatter, body, and title from raw Markdown bytes.
// Malformed frontmatter is not an error: the whole input becomes the body.
func Parse(data []byte) *Result {
	fm, body, _ := SplitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
	}
}

// SplitFrontmatter separates YAML frontmatter (between leading --- delimiter
// lines) from the Markdown body. Leading blank lines and whitespace before the
// opening delimiter are tolerated. ok is false when there is no frontmatter,
// the block is unterminated, or the YAML is invalid; body is then data unmodified.
func SplitFrontmatter(data []byte) (fm map[string]any, body string, ok bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, " \t\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	// Opening delimiter must be a line of its own.
	rest := trimmed[len(delim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		return nil, string(data), false
	}
	rest = rest[nl+1:]

	yamlBlock, after, found := cutDelimiterLine(rest, delim)
	if !found {
		return nil, string(data), false
	}

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), false
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return fm, strings.TrimLeft(string(after), "\n\r"), true
}

// cutDelimiterLine finds the first line equal to delim and returns the bytes
// before and after that line.
func cutDelimiterLine(data []byte, delim string) (before, after []byte, found bool) {
	offset := 0
	for offset <= len(data) {
		end := bytes.IndexByte(data[offset:], '\n')
		var line []byte
		next := len(data) + 1
		if end < 0 {
			line = data[offset:]
		} else {
			line = data[offset : offset+end]
			next = offset + end + 1
		}
		if strings.TrimRight(string(line), " \t\r") == delim {
			if next > len(data) {
				return data[:offset], nil, true
			}
			return data[:offset], data[next:], true
		}
		offset = next
	}
	return nil, nil, false
}

// FirstHeading returns the text of the first H1 heading outside fenced code
// blocks. Only the first H1 is honoured.
func FirstHeading(body string) (string, bool) {
	title, _, ok := firstHeading(body)
	return title, ok
}

func firstHeading(body string) (title string, line int, ok bool) {
	inFence := ""
	for i, l := range strings.Split(body, "\n") {
		l = strings.TrimRight(l, "\r")
		if m := fenceRe.FindStringSubmatch(l); m != nil {
			switch inFence {
			case "":
				inFence = m[1]
			case m[1]:
				inFence = ""
			}
			continue
		}
		if inFence != "" {
			continue
		}
		if m := h1Re.FindStringSubmatch(l); m != nil {
			return m[1], i, true
		}
	}
	return "", -1, false
}

// StripFirstHeading removes the first H1 heading line and trims surrounding
// blank lines from the result.
func StripFirstHeading(body string) string {
	_, idx, ok := firstHeading(body)
	if !ok {
		return strings.Trim(body, "\r\n")
	}
	lines := strings.Split(body, "\n")
	lines = append(lines[:idx:idx], lines[idx+1:]...)
	return strings.Trim(strings.Join(lines, "\n"), "\r\n")
}

// SplitSections splits a combined document into H1 sections. Text before the
// first H1 is discarded.
func SplitSections(doc string) []Section {
	var out []Section
	var cur *Section
	var buf []string
	inFence := ""

	flush := func() {
		if cur != nil {
			cur.Body = strings.Trim(strings.Join(buf, "\n"), "\r\n")
			out = append(out, *cur)
		}
	}

	for _, l := range strings.Split(doc, "\n") {
		trimmed := strings.TrimRight(l, "\r")
		if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
			switch inFence {
			case "":
				inFence = m[1]
			case m[1]:
				inFence = ""
			}
		} else if inFence == "" {
			if m := h1Re.FindStringSubmatch(trimmed); m != nil {
				flush()
				cur = &Section{Title: m[1]}
				buf = buf[:0]
				continue
			}
		}
		if cur != nil {
			buf = append(buf, l)
		}
	}
	flush()
	return out
}

// StringField returns fm[key] as a trimmed string when it is a scalar.
func StringField(fm map[string]any, key string) (string, bool) {
	raw, ok := fm[key]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case int, int64, float64, bool:
		s := strings.TrimSpace(yamlScalar(v))
		return s, s != ""
	}
	return "", false
}

func yamlScalar(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := StringField(fm, "title"); ok {
		return s
	}
	title, _ := FirstHeading(body)
	return title
}
