// Package extract reads file trees and file contents at a given commit.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/checksum"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/models"
)

// Blob is the content of one file at one commit.
type Blob struct {
	Content []byte
	Binary  bool
}

// Text returns the blob as a string, or "" for binary blobs.
func (b Blob) Text() string {
	if b.Binary {
		return ""
	}
	return string(b.Content)
}

// IsBinary reports whether data must be treated as binary: it contains a NUL
// byte or is not valid UTF-8. Detection never looks at file extensions.
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}

// Options configures an Extractor.
type Options struct {
	// Ignore holds gitignore-style patterns excluded from snapshots.
	Ignore  []string
	Workers int
	Logger  *slog.Logger
}

// Extractor exposes per-commit file listing and reading on top of a Backend.
type Extractor struct {
	backend gitrepo.Backend
	ignore  *gitignore.GitIgnore
	workers int
	logger  *slog.Logger
}

// New creates an Extractor.
func New(backend gitrepo.Backend, opts Options) *Extractor {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var ignore *gitignore.GitIgnore
	if len(opts.Ignore) > 0 {
		ignore = gitignore.CompileIgnoreLines(opts.Ignore...)
	}
	return &Extractor{backend: backend, ignore: ignore, workers: workers, logger: logger}
}

// Backend returns the underlying repository backend.
func (e *Extractor) Backend() gitrepo.Backend {
	return e.backend
}

// Ignored reports whether path is excluded from snapshots.
func (e *Extractor) Ignored(path string) bool {
	return e.ignore != nil && e.ignore.MatchesPath(path)
}

// ListFiles returns every tracked path in the commit's tree.
func (e *Extractor) ListFiles(ctx context.Context, commit string) ([]string, error) {
	paths, err := e.backend.ListFiles(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("extract: list %s: %w", commit, err)
	}
	return paths, nil
}

// ReadFile returns the blob at path and commit. A missing path yields
// apperr.ErrNotFound, which callers treat as "no content".
func (e *Extractor) ReadFile(ctx context.Context, commit, path string) (Blob, error) {
	data, err := e.backend.ReadBlob(ctx, commit, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Blob{}, apperr.ErrNotFound
		}
		return Blob{}, fmt.Errorf("extract: read %s at %s: %w", path, commit, err)
	}
	return Blob{Content: data, Binary: IsBinary(data)}, nil
}

// ReadText reads a narrative-style text file. ok is false when the file is
// missing or binary.
func (e *Extractor) ReadText(ctx context.Context, commit, path string) (text string, ok bool, err error) {
	blob, err := e.ReadFile(ctx, commit, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if blob.Binary {
		e.logger.Warn("extract: text file is binary, ignoring",
			slog.String("path", path),
			slog.String("commit", commit))
		return "", false, nil
	}
	return string(blob.Content), true, nil
}

// Snapshot reads every non-ignored file of the commit. Binary files are
// returned with IsBinary set and no content. Order follows ListFiles.
func (e *Extractor) Snapshot(ctx context.Context, commit string) ([]models.FileNode, error) {
	all, err := e.ListFiles(ctx, commit)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(all))
	for _, p := range all {
		if !e.Ignored(p) {
			paths = append(paths, p)
		}
	}

	nodes := make([]models.FileNode, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range paths {
		g.Go(func() error {
			blob, err := e.ReadFile(gCtx, commit, p)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					nodes[i] = models.FileNode{Path: p}
					return nil
				}
				return err
			}
			nodes[i] = models.FileNode{
				Path:     p,
				Content:  blob.Text(),
				IsBinary: blob.Binary,
				Checksum: checksum.Sum(blob.Content),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}
