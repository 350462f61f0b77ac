package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/commitbook/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_CommitTriggersRebuild(t *testing.T) {
	r := testutil.TestRepo(t)
	r.WriteFile("a.txt", "1\n")
	r.Commit("first")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, r.Dir, 100*time.Millisecond, quietLogger(), func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()
	time.Sleep(100 * time.Millisecond)

	r.WriteFile("a.txt", "2\n")
	r.Commit("second")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "commit did not trigger a rebuild")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop after cancel")
	}
}

func TestWatch_DebouncesBursts(t *testing.T) {
	r := testutil.TestRepo(t)
	r.Commit("first")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go Watch(ctx, r.Dir, 400*time.Millisecond, quietLogger(), func(context.Context) error {
		calls.Add(1)
		return nil
	})
	time.Sleep(100 * time.Millisecond)

	r.Commit("second")
	r.Commit("third")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "no rebuild after burst")
	time.Sleep(600 * time.Millisecond)
	if n := calls.Load(); n > 2 {
		t.Errorf("rebuild called %d times for one burst", n)
	}
}

func TestWatch_NotARepository(t *testing.T) {
	err := Watch(context.Background(), t.TempDir(), 0, quietLogger(), func(context.Context) error { return nil })
	if err == nil {
		t.Error("expected error for directory without .git")
	}
}

func TestIsRefEvent(t *testing.T) {
	git := "/r/.git"
	refs := "/r/.git/refs"
	cases := map[string]bool{
		"/r/.git/HEAD":                  true,
		"/r/.git/HEAD.lock":             false,
		"/r/.git/packed-refs":           true,
		"/r/.git/index":                 false,
		"/r/.git/refs/heads/main":       true,
		"/r/.git/refs/heads/main.lock":  false,
		"/r/.git/objects/ab/cdef":       false,
		"/r/.git/refs-not-really/thing": false,
	}
	for path, want := range cases {
		if got := isRefEvent(git, refs, path); got != want {
			t.Errorf("isRefEvent(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatch_GitdirFile(t *testing.T) {
	r := testutil.TestRepo(t)
	r.Commit("first")

	// A checkout whose .git is a file pointing at the real git directory.
	checkout := t.TempDir()
	if err := os.WriteFile(filepath.Join(checkout, ".git"), []byte("gitdir: "+filepath.Join(r.Dir, ".git")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, checkout, 100*time.Millisecond, quietLogger(), func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()
	time.Sleep(100 * time.Millisecond)

	r.Commit("second")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "commit did not trigger a rebuild through a gitdir file")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestResolveGitDir(t *testing.T) {
	root := t.TempDir()
	common := filepath.Join(root, "main", ".git")
	worktree := filepath.Join(common, "worktrees", "wt")
	if err := os.MkdirAll(worktree, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(worktree, "commondir"), []byte("../..\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	checkout := filepath.Join(root, "wt")
	if err := os.MkdirAll(checkout, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(checkout, ".git"), []byte("gitdir: ../main/.git/worktrees/wt\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	gitDir, commonDir, err := resolveGitDir(checkout)
	if err != nil {
		t.Fatalf("resolveGitDir: %v", err)
	}
	if gitDir != worktree {
		t.Errorf("gitDir = %q, want %q", gitDir, worktree)
	}
	if commonDir != common {
		t.Errorf("commonDir = %q, want %q", commonDir, common)
	}

	gitDir, commonDir, err = resolveGitDir(filepath.Join(root, "main"))
	if err != nil || gitDir != common || commonDir != common {
		t.Errorf("plain repo = %q, %q, %v", gitDir, commonDir, err)
	}

	bad := filepath.Join(root, "bad")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ".git"), []byte("not a pointer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := resolveGitDir(bad); err == nil {
		t.Error("expected error for malformed .git file")
	}
}
