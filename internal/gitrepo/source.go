package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/starford/commitbook/internal/apperr"
)

var scpLikeRe = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^/]`)

// Checkout is a repository ready for reading. Remote sources are cloned into
// a temporary directory that Close removes.
type Checkout struct {
	// Input is the source as given by the user.
	Input string
	// Dir is the local working directory of the repository.
	Dir    string
	Remote bool
	tmp    string
}

// Close removes the temporary clone, if any.
func (c *Checkout) Close() error {
	if c.tmp == "" {
		return nil
	}
	if err := os.RemoveAll(c.tmp); err != nil {
		return fmt.Errorf("gitrepo: remove clone %s: %w", c.tmp, err)
	}
	c.tmp = ""
	return nil
}

// IsRemote reports whether source names a remote repository rather than a
// local path.
func IsRemote(source string) bool {
	if scheme, _, ok := strings.Cut(source, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http", "https", "ssh", "git", "file":
			return true
		}
		return false
	}
	return scpLikeRe.MatchString(source)
}

func cloneTimeout(perCall time.Duration) time.Duration {
	if perCall <= 0 {
		return 5 * time.Minute
	}
	return 10 * perCall
}

// Fetch resolves source into a Checkout. Local paths are checked for
// existence; remote URLs are cloned into a fresh temporary directory, which is
// removed again if the clone fails.
func Fetch(ctx context.Context, source string, opts Options, logger *slog.Logger) (*Checkout, error) {
	if source == "" {
		return nil, &apperr.RepositoryAccessError{Source: source, Err: fmt.Errorf("source is empty")}
	}
	if !IsRemote(source) {
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, &apperr.RepositoryAccessError{Source: source, Err: err}
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, &apperr.RepositoryAccessError{Source: source, Err: err}
		}
		if !info.IsDir() {
			return nil, &apperr.RepositoryAccessError{Source: source, Err: fmt.Errorf("not a directory")}
		}
		return &Checkout{Input: source, Dir: abs}, nil
	}

	tmp, err := os.MkdirTemp("", "commitbook-clone-*")
	if err != nil {
		return nil, fmt.Errorf("gitrepo: create clone dir: %w", err)
	}
	dir := filepath.Join(tmp, "repo")

	logger.Info("gitrepo: cloning",
		slog.String("url", source),
		slog.String("backend", opts.Kind),
		slog.Int("depth", opts.CloneDepth))

	var cloneErr error
	switch opts.Kind {
	case KindGoGit:
		cloneErr = cloneGoGit(ctx, source, dir, opts)
	default:
		cloneErr = cloneExec(ctx, source, dir, opts)
	}
	if cloneErr != nil {
		_ = os.RemoveAll(tmp)
		return nil, &apperr.CloneError{URL: source, Err: cloneErr}
	}
	return &Checkout{Input: source, Dir: dir, Remote: true, tmp: tmp}, nil
}
