// Package gitrepo reads commit history, trees, and blobs from a Git repository.
//
// Backend is the narrow capability the pipeline depends on. The default
// implementation shells out to the git executable; the gogit implementation
// reads the object database in-process. Callers never see which one is used.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/commitbook/internal/models"
)

// Backend kinds.
const (
	KindExec  = "exec"
	KindGoGit = "gogit"
)

var errNoCommits = errors.New("repository has no commits")

// Backend abstracts access to repository data.
type Backend interface {
	// Commits returns every commit reachable from HEAD, oldest first.
	Commits(ctx context.Context) ([]models.Commit, error)
	// ListFiles returns every tracked file path in the commit's tree.
	ListFiles(ctx context.Context, hash string) ([]string, error)
	// ReadBlob returns the raw bytes of path at the commit, or
	// apperr.ErrNotFound when the path is absent or not a file.
	ReadBlob(ctx context.Context, hash, path string) ([]byte, error)
	// RemoteURL returns the origin URL, or "" when none is configured.
	RemoteURL(ctx context.Context) (string, error)
}

// Options configures backend construction and cloning.
type Options struct {
	Kind       string
	Binary     string
	Timeout    time.Duration
	CloneDepth int
}

// Validate validates the options.
func (o *Options) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Kind, validation.Required, validation.In(KindExec, KindGoGit)),
		validation.Field(&o.Timeout, validation.Required),
		validation.Field(&o.CloneDepth, validation.Min(0)),
	)
}

// DefaultOptions returns options for the exec backend with a 30s per-call timeout.
func DefaultOptions() Options {
	return Options{
		Kind:    KindExec,
		Binary:  "git",
		Timeout: 30 * time.Second,
	}
}

// Open returns a backend of the configured kind rooted at dir.
func Open(ctx context.Context, dir string, opts Options) (Backend, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("gitrepo: invalid options: %w", err)
	}
	switch opts.Kind {
	case KindGoGit:
		return OpenGoGit(dir)
	default:
		return OpenExec(ctx, dir, opts)
	}
}
