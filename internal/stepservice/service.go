// Package stepservice is the read interface over a built output directory.
package stepservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/checksum"
	"github.com/starford/commitbook/internal/diff"
	"github.com/starford/commitbook/internal/extract"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/models"
	"github.com/starford/commitbook/internal/parser"
	"github.com/starford/commitbook/internal/storage"
)

// StepDetail is the full representation of a step.
type StepDetail struct {
	Slug          string `json:"slug"`
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Commit        string `json:"commit"`
	CommitMessage string `json:"commitMessage"`
	Content       string `json:"content"`
	HasOutput     bool   `json:"hasOutput"`
	Synthetic     bool   `json:"synthetic"`
	Checksum      string `json:"checksum"`
	Prev          string `json:"prev,omitempty"`
	Next          string `json:"next,omitempty"`
}

// StepFiles describes what a step changed.
type StepFiles struct {
	Slug    string     `json:"slug"`
	Commit  string     `json:"commit"`
	Changed []string   `json:"changed"`
	Deleted []string   `json:"deleted"`
	Tree    *diff.Node `json:"tree,omitempty"`
}

// Service coordinates storage, index, and repository reads.
type Service struct {
	store storage.Provider
	db    index.StepIndex
	ext   *extract.Extractor
}

// NewService creates a step service. ext may be nil when the source
// repository is not available locally; diffs are then served from
// precomputed change files only.
func NewService(store storage.Provider, db index.StepIndex, ext *extract.Extractor) *Service {
	return &Service{store: store, db: db, ext: ext}
}

// Manifest returns the project manifest.
func (s *Service) Manifest(_ context.Context) (*models.Manifest, error) {
	m, err := index.LoadManifest(s.store)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stepservice: manifest: %w", apperr.ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// ListSteps returns every indexed step in order.
func (s *Service) ListSteps(_ context.Context) ([]index.StepRow, error) {
	return s.db.ListSteps()
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// locate returns the manifest position of slug.
func (s *Service) locate(ctx context.Context, slug string) (*models.Manifest, int, error) {
	m, err := s.Manifest(ctx)
	if err != nil {
		return nil, 0, err
	}
	for i, e := range m.Steps {
		if e.Slug == slug {
			return m, i, nil
		}
	}
	return nil, 0, fmt.Errorf("stepservice: step %s: %w", slug, apperr.ErrNotFound)
}

// GetStep combines the indexed row of a step with its file content and
// manifest navigation.
func (s *Service) GetStep(ctx context.Context, slug string) (*StepDetail, error) {
	row, err := s.db.GetStep(slug)
	if err != nil {
		return nil, err
	}
	m, i, err := s.locate(ctx, slug)
	if err != nil {
		return nil, err
	}
	data, err := s.read(build.StepPath(slug))
	if err != nil {
		return nil, err
	}
	_, body, _ := parser.SplitFrontmatter(data)
	d := &StepDetail{
		Slug:          slug,
		Position:      row.Position,
		Title:         row.Title,
		Commit:        row.Commit,
		CommitMessage: row.CommitMessage,
		Content:       strings.TrimSpace(body),
		HasOutput:     row.HasOutput,
		Synthetic:     row.Synthetic,
		Checksum:      checksum.Sum(data),
	}
	if i > 0 {
		d.Prev = m.Steps[i-1].Slug
	}
	if i+1 < len(m.Steps) {
		d.Next = m.Steps[i+1].Slug
	}
	return d, nil
}

// StepOutput returns the output log of a step.
func (s *Service) StepOutput(ctx context.Context, slug string) (string, error) {
	m, i, err := s.locate(ctx, slug)
	if err != nil {
		return "", err
	}
	if !m.Steps[i].HasOutput {
		return "", fmt.Errorf("stepservice: output %s: %w", slug, apperr.ErrNotFound)
	}
	data, err := s.read(build.OutputPath(slug))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StepFiles returns the files a step changed and deleted, plus the folder
// tree of its snapshot when the repository is available.
func (s *Service) StepFiles(ctx context.Context, slug string) (*StepFiles, error) {
	m, i, err := s.locate(ctx, slug)
	if err != nil {
		return nil, err
	}
	commit := m.Steps[i].Commit

	if s.ext != nil {
		current, previous, err := s.snapshots(ctx, m, i)
		if err != nil {
			return nil, err
		}
		changed := diff.ChangedFiles(current, previous)
		return &StepFiles{
			Slug:    slug,
			Commit:  commit,
			Changed: changed,
			Deleted: nonNilSlice(diff.Deleted(current, previous)),
			Tree:    diff.BuildTree(current, changed),
		}, nil
	}

	sc, err := s.changes(slug)
	if err != nil {
		return nil, err
	}
	out := &StepFiles{Slug: slug, Commit: commit, Changed: []string{}, Deleted: nonNilSlice(sc.Deleted)}
	for _, c := range sc.Changed {
		out.Changed = append(out.Changed, c.Path)
	}
	if len(sc.Files) > 0 {
		out.Tree = diff.BuildTree(sc.Files, out.Changed)
	}
	return out, nil
}

// StepDiff returns the unified diff of path introduced by a step.
func (s *Service) StepDiff(ctx context.Context, slug, path string) (*diff.Result, error) {
	m, i, err := s.locate(ctx, slug)
	if err != nil {
		return nil, err
	}

	if sc, err := s.changes(slug); err == nil {
		for _, c := range sc.Changed {
			if c.Path == path {
				return &diff.Result{Path: c.Path, Diff: c.Diff, Binary: c.Binary, New: c.New}, nil
			}
		}
		if s.ext == nil {
			// Unchanged in this step: an empty diff if the file exists at all.
			if n := diff.BuildTree(sc.Files, nil).Find(path); n == nil || n.Kind != diff.KindFile {
				return nil, fmt.Errorf("stepservice: diff %s: %w", path, apperr.ErrNotFound)
			}
			return &diff.Result{Path: path}, nil
		}
	} else if !errors.Is(err, apperr.ErrUnavailable) {
		return nil, err
	}
	if s.ext == nil {
		return nil, fmt.Errorf("stepservice: diff %s: %w", slug, apperr.ErrUnavailable)
	}
	if s.ext.Ignored(path) {
		return nil, fmt.Errorf("stepservice: diff %s: %w", path, apperr.ErrNotFound)
	}

	current, err := s.fileAt(ctx, m.Steps[i].Commit, path)
	if err != nil {
		return nil, err
	}
	var previous []models.FileNode
	if i > 0 {
		previous, err = s.fileAt(ctx, m.Steps[i-1].Commit, path)
		if err != nil {
			return nil, err
		}
	}
	res, err := diff.Unified(path, current, previous)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// fileAt returns path at commit as a zero- or one-element snapshot.
func (s *Service) fileAt(ctx context.Context, commit, path string) ([]models.FileNode, error) {
	blob, err := s.ext.ReadFile(ctx, commit, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []models.FileNode{{Path: path, Content: blob.Text(), IsBinary: blob.Binary}}, nil
}

func (s *Service) snapshots(ctx context.Context, m *models.Manifest, i int) (current, previous []models.FileNode, err error) {
	current, err = s.ext.Snapshot(ctx, m.Steps[i].Commit)
	if err != nil {
		return nil, nil, err
	}
	if i > 0 {
		previous, err = s.ext.Snapshot(ctx, m.Steps[i-1].Commit)
		if err != nil {
			return nil, nil, err
		}
	}
	return current, previous, nil
}

// changes loads the precomputed change set of a step. A build without
// precomputed diffs yields apperr.ErrUnavailable.
func (s *Service) changes(slug string) (*models.StepChanges, error) {
	data, err := s.store.Read(build.ChangesPath(slug))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stepservice: changes %s: %w", slug, apperr.ErrUnavailable)
		}
		return nil, err
	}
	var sc models.StepChanges
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("stepservice: decode changes %s: %w", slug, err)
	}
	return &sc, nil
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stepservice: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
