package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/models"
)

// GoGitBackend implements Backend in-process with go-git. A go-git
// repository is not safe for concurrent object reads, so every method holds mu.
type GoGitBackend struct {
	mu   sync.Mutex
	dir  string
	repo *git.Repository
}

// OpenGoGit opens the repository at dir.
func OpenGoGit(dir string) (*GoGitBackend, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &apperr.RepositoryAccessError{Source: dir, Err: err}
	}
	return &GoGitBackend{dir: dir, repo: repo}, nil
}

// Commits walks the log from HEAD and returns it oldest first.
func (b *GoGitBackend) Commits(ctx context.Context) ([]models.Commit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	head, err := b.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, &apperr.RepositoryAccessError{Source: b.dir, Err: errNoCommits}
		}
		return nil, &apperr.RepositoryAccessError{Source: b.dir, Err: err}
	}
	iter, err := b.repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, &apperr.RepositoryAccessError{Source: b.dir, Err: err}
	}
	defer iter.Close()

	var newestFirst []models.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		newestFirst = append(newestFirst, models.Commit{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(subject),
			Date:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitrepo: walk log: %w", err)
	}
	if len(newestFirst) == 0 {
		return nil, &apperr.RepositoryAccessError{Source: b.dir, Err: errNoCommits}
	}

	commits := make([]models.Commit, len(newestFirst))
	for i, c := range newestFirst {
		j := len(newestFirst) - 1 - i
		c.Order = j
		commits[j] = c
	}
	return commits, nil
}

// tree must be called with mu held.
func (b *GoGitBackend) tree(hash string) (*object.Tree, error) {
	c, err := b.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("gitrepo: commit %s: %w", hash, err)
	}
	t, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("gitrepo: tree of %s: %w", hash, err)
	}
	return t, nil
}

// ListFiles returns the blob paths of the commit's tree, sorted.
func (b *GoGitBackend) ListFiles(ctx context.Context, hash string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := b.tree(hash)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = t.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitrepo: list %s: %w", hash, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadBlob returns the content of path at hash.
func (b *GoGitBackend) ReadBlob(ctx context.Context, hash, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := b.tree(hash)
	if err != nil {
		return nil, err
	}
	entry, err := t.FindEntry(path)
	if err != nil || !entry.Mode.IsFile() {
		return nil, apperr.ErrNotFound
	}
	f, err := t.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("gitrepo: read %s:%s: %w", hash, path, err)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("gitrepo: open %s:%s: %w", hash, path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: read %s:%s: %w", hash, path, err)
	}
	return data, nil
}

// RemoteURL returns the first URL of the origin remote, or "".
func (b *GoGitBackend) RemoteURL(_ context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remote, err := b.repo.Remote("origin")
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("gitrepo: read origin: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}

func cloneGoGit(ctx context.Context, url, dir string, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, cloneTimeout(opts.Timeout))
	defer cancel()
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        opts.CloneDepth,
		SingleBranch: opts.CloneDepth > 0,
		Tags:         git.NoTags,
	})
	return err
}
