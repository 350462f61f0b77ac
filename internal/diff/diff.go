// Package diff computes changed-file sets and unified diffs between two
// snapshots of a repository.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/models"
)

// BinaryUnsupported is the Diff text of a Result whose file is binary on
// either side.
const BinaryUnsupported = "Binary diff unsupported"

// ContextLines is the number of unchanged lines around each hunk.
const ContextLines = 3

// Result is the diff of one path between two snapshots.
type Result struct {
	Path   string `json:"path"`
	Diff   string `json:"diff"`
	Binary bool   `json:"binary"`
	New    bool   `json:"new"`
}

func index(nodes []models.FileNode) map[string]models.FileNode {
	m := make(map[string]models.FileNode, len(nodes))
	for _, n := range nodes {
		m[n.Path] = n
	}
	return m
}

func differs(a, b models.FileNode) bool {
	if a.Checksum != "" && b.Checksum != "" {
		return a.Checksum != b.Checksum
	}
	return a.IsBinary != b.IsBinary || a.Content != b.Content
}

// ChangedFiles returns the sorted paths of current that are absent from
// previous or whose content differs. An empty previous marks every path as
// changed.
func ChangedFiles(current, previous []models.FileNode) []string {
	prev := index(previous)
	out := make([]string, 0, len(current))
	for _, n := range current {
		p, ok := prev[n.Path]
		if !ok || differs(n, p) {
			out = append(out, n.Path)
		}
	}
	sort.Strings(out)
	return out
}

// Deleted returns the sorted paths present in previous but not in current.
func Deleted(current, previous []models.FileNode) []string {
	cur := index(current)
	var out []string
	for _, n := range previous {
		if _, ok := cur[n.Path]; !ok {
			out = append(out, n.Path)
		}
	}
	sort.Strings(out)
	return out
}

// Unified computes the unified diff of path from previous to current. A path
// missing from previous is diffed against empty content. If either side is
// binary no textual diff is attempted. A path missing from current yields
// apperr.ErrNotFound.
func Unified(path string, current, previous []models.FileNode) (Result, error) {
	var cur, prev *models.FileNode
	for i := range current {
		if current[i].Path == path {
			cur = &current[i]
			break
		}
	}
	if cur == nil {
		return Result{}, fmt.Errorf("diff: %s: %w", path, apperr.ErrNotFound)
	}
	for i := range previous {
		if previous[i].Path == path {
			prev = &previous[i]
			break
		}
	}

	res := Result{Path: path, New: prev == nil}
	if cur.IsBinary || (prev != nil && prev.IsBinary) {
		res.Binary = true
		res.Diff = BinaryUnsupported
		return res, nil
	}

	before := ""
	if prev != nil {
		before = prev.Content
	}
	text, err := Text(path, before, cur.Content, prev == nil)
	if err != nil {
		return Result{}, err
	}
	res.Diff = text
	return res, nil
}

// Text returns the unified diff between two text versions of path. It is
// empty when the versions are equal.
func Text(path, before, after string, isNew bool) (string, error) {
	from := "a/" + path
	if isNew {
		from = "/dev/null"
	}
	ud := difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: from,
		ToFile:   "b/" + path,
		Context:  ContextLines,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("diff: %s: %w", path, err)
	}
	return out, nil
}

// noNewline is git's marker for a last line without a line terminator.
const noNewline = "\\ No newline at end of file\n"

// splitLines splits s into newline-terminated lines. An unterminated last
// line carries the no-newline marker, so adding or removing a final newline
// shows up in the diff the way git prints it. Empty input yields no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n" + noNewline
	}
	return lines
}
