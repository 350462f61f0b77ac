package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Repo is a throwaway git repository driven through the git executable.
// Commits get deterministic author and committer dates, one hour apart,
// starting at 2023-03-01T10:00:00Z.
type Repo struct {
	t     testing.TB
	Dir   string
	clock time.Time
}

// TestRepo initialises an empty repository in a temp dir. The test is skipped
// when git is not installed.
func TestRepo(t testing.TB) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}
	dir := filepath.Join(t.TempDir(), "sample-project")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	r := &Repo{
		t:     t,
		Dir:   dir,
		clock: time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	r.Git("init", "-q")
	r.Git("config", "user.name", "Test Author")
	r.Git("config", "user.email", "author@example.com")
	r.Git("config", "commit.gpgsign", "false")
	return r
}

// Git runs a git command in the repository and returns trimmed stdout.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	date := r.clock.Format(time.RFC3339)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_DATE="+date,
		"GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes content to a repository-relative path, creating parents.
func (r *Repo) WriteFile(path, content string) {
	r.t.Helper()
	r.WriteBytes(path, []byte(content))
}

// WriteBytes writes raw bytes to a repository-relative path.
func (r *Repo) WriteBytes(path string, data []byte) {
	r.t.Helper()
	abs := filepath.Join(r.Dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		r.t.Fatal(err)
	}
}

// Remove deletes a repository-relative path from the working tree.
func (r *Repo) Remove(path string) {
	r.t.Helper()
	if err := os.Remove(filepath.Join(r.Dir, filepath.FromSlash(path))); err != nil {
		r.t.Fatal(err)
	}
}

// Commit stages everything and commits it, returning the full hash.
func (r *Repo) Commit(message string) string {
	r.t.Helper()
	r.Git("add", "-A")
	r.Git("commit", "-q", "--allow-empty", "-m", message)
	r.clock = r.clock.Add(time.Hour)
	return r.Git("rev-parse", "HEAD")
}
