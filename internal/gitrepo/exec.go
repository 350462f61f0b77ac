package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/models"
)

// ExecBackend implements Backend by running the git executable. Every
// argument is passed as a discrete parameter; no shell is involved.
type ExecBackend struct {
	dir     string
	bin     string
	timeout time.Duration
}

// commandError carries the failing git invocation and its stderr.
type commandError struct {
	args   []string
	stderr string
	err    error
}

func (e *commandError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.args, " "), e.err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.args, " "), e.err, msg)
}

func (e *commandError) Unwrap() error { return e.err }

// OpenExec verifies that dir is a git repository and returns a backend for it.
func OpenExec(ctx context.Context, dir string, opts Options) (*ExecBackend, error) {
	bin := opts.Binary
	if bin == "" {
		bin = "git"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("gitrepo: git executable not found: %w", err)
	}
	b := &ExecBackend{dir: dir, bin: bin, timeout: opts.Timeout}
	if _, err := b.run(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, &apperr.RepositoryAccessError{Source: dir, Err: err}
	}
	return b, nil
}

func (b *ExecBackend) run(ctx context.Context, args ...string) ([]byte, error) {
	return runGit(ctx, b.bin, b.dir, b.timeout, args...)
}

func runGit(ctx context.Context, bin, dir string, timeout time.Duration, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &commandError{args: args, stderr: stderr.String(), err: err}
	}
	return out, nil
}

// Commits runs git log over HEAD and returns the history oldest first.
func (b *ExecBackend) Commits(ctx context.Context) ([]models.Commit, error) {
	out, err := b.run(ctx, "log", "--reverse", "--no-color", "--format=%H%x1f%aI%x1f%s", "HEAD", "--")
	if err != nil {
		return nil, &apperr.RepositoryAccessError{Source: b.dir, Err: err}
	}
	commits, err := parseLog(out)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: parse log: %w", err)
	}
	if len(commits) == 0 {
		return nil, &apperr.RepositoryAccessError{Source: b.dir, Err: errNoCommits}
	}
	return commits, nil
}

// parseLog parses lines of "hash \x1f date \x1f subject".
func parseLog(out []byte) ([]models.Commit, error) {
	var commits []models.Commit
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed log line %q", line)
		}
		date, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", parts[0], err)
		}
		commits = append(commits, models.Commit{
			Hash:    parts[0],
			Message: strings.TrimSpace(parts[2]),
			Date:    date,
			Order:   len(commits),
		})
	}
	return commits, nil
}

// ListFiles returns the blob paths of the commit's tree, sorted.
func (b *ExecBackend) ListFiles(ctx context.Context, hash string) ([]string, error) {
	out, err := b.run(ctx, "ls-tree", "-r", "-z", "--full-tree", hash)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: ls-tree %s: %w", hash, err)
	}
	var paths []string
	for _, entry := range bytes.Split(out, []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		// <mode> SP <type> SP <object> TAB <path>
		meta, path, ok := bytes.Cut(entry, []byte{'\t'})
		if !ok {
			continue
		}
		fields := bytes.Fields(meta)
		if len(fields) < 2 || string(fields[1]) != "blob" {
			continue
		}
		paths = append(paths, string(path))
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadBlob returns the content of path at hash.
func (b *ExecBackend) ReadBlob(ctx context.Context, hash, path string) ([]byte, error) {
	object := hash + ":" + path
	kind, err := b.run(ctx, "cat-file", "-t", object)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("gitrepo: cat-file %s: %w", object, err)
		}
		return nil, apperr.ErrNotFound
	}
	if strings.TrimSpace(string(kind)) != "blob" {
		return nil, apperr.ErrNotFound
	}
	data, err := b.run(ctx, "cat-file", "blob", object)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: cat-file %s: %w", object, err)
	}
	return data, nil
}

// RemoteURL returns remote.origin.url, or "" when unset.
func (b *ExecBackend) RemoteURL(ctx context.Context) (string, error) {
	out, err := b.run(ctx, "config", "--get", "remote.origin.url")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("gitrepo: read origin: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func cloneExec(ctx context.Context, url, dir string, opts Options) error {
	bin := opts.Binary
	if bin == "" {
		bin = "git"
	}
	args := []string{"clone", "--quiet", "--no-tags"}
	if opts.CloneDepth > 0 {
		args = append(args, "--depth", fmt.Sprint(opts.CloneDepth), "--single-branch")
	}
	args = append(args, "--", url, dir)
	_, err := runGit(ctx, bin, "", cloneTimeout(opts.Timeout), args...)
	return err
}
