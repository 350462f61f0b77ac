package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RebuildFunc is called after the watched repository's refs settle.
type RebuildFunc func(ctx context.Context) error

// DefaultDebounce is the quiet period Watch waits for before rebuilding.
const DefaultDebounce = 500 * time.Millisecond

// Watch starts an fsnotify watcher on the git directory of repoDir and calls
// rebuild whenever HEAD or a ref changes, until ctx is cancelled. Bursts of
// events (a commit touches several refs and lock files) are debounced into
// one call. Rebuild errors are logged and do not stop the watcher.
//
// New directories created under refs/ at runtime are added to the watch list.
func Watch(ctx context.Context, repoDir string, debounce time.Duration, logger *slog.Logger, rebuild RebuildFunc) error {
	gitDir, commonDir, err := resolveGitDir(repoDir)
	if err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(gitDir); err != nil {
		return err
	}
	if commonDir != gitDir {
		if err := w.Add(commonDir); err != nil {
			return err
		}
	}
	refsDir := filepath.Join(commonDir, "refs")
	if err := addDirsRecursive(w, refsDir); err != nil && !os.IsNotExist(err) {
		return err
	}

	logger.Info("watcher: started", slog.String("git_dir", gitDir))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			logger.Info("watcher: repository changed, rebuilding")
			if err := rebuild(ctx); err != nil {
				logger.Error("watcher: rebuild failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 && isUnder(refsDir, ev.Name) {
				if st, statErr := os.Stat(ev.Name); statErr == nil && st.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isRefEvent(gitDir, refsDir, ev.Name) && !isRefEvent(commonDir, refsDir, ev.Name) {
				continue
			}
			logger.Debug("watcher: ref event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// resolveGitDir returns the git directory of repoDir and the common
// directory holding its refs. A .git file ("gitdir: <path>", as written for
// worktrees and submodules) is followed; a relative path is taken from
// repoDir. Worktree git directories name the shared one in a commondir file.
func resolveGitDir(repoDir string) (gitDir, commonDir string, err error) {
	gitDir = filepath.Join(repoDir, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return "", "", fmt.Errorf("watcher: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(gitDir)
		if err != nil {
			return "", "", fmt.Errorf("watcher: %w", err)
		}
		line, _, _ := strings.Cut(string(data), "\n")
		target, ok := strings.CutPrefix(strings.TrimSpace(line), "gitdir:")
		if !ok {
			return "", "", fmt.Errorf("watcher: %s is neither a directory nor a gitdir file", gitDir)
		}
		gitDir = strings.TrimSpace(target)
		if !filepath.IsAbs(gitDir) {
			gitDir = filepath.Join(repoDir, gitDir)
		}
		if info, err = os.Stat(gitDir); err != nil {
			return "", "", fmt.Errorf("watcher: %w", err)
		}
		if !info.IsDir() {
			return "", "", fmt.Errorf("watcher: %s is not a directory", gitDir)
		}
	}
	gitDir = filepath.Clean(gitDir)

	commonDir = gitDir
	if data, err := os.ReadFile(filepath.Join(gitDir, "commondir")); err == nil {
		commonDir = strings.TrimSpace(string(data))
		if !filepath.IsAbs(commonDir) {
			commonDir = filepath.Join(gitDir, commonDir)
		}
		commonDir = filepath.Clean(commonDir)
	}
	return gitDir, commonDir, nil
}

// isRefEvent reports whether path is HEAD, packed-refs or a ref file. Lock
// files are ignored; the rename that replaces them is what counts.
func isRefEvent(gitDir, refsDir, path string) bool {
	if strings.HasSuffix(path, ".lock") {
		return false
	}
	if filepath.Dir(path) == gitDir {
		switch filepath.Base(path) {
		case "HEAD", "packed-refs":
			return true
		}
		return false
	}
	return isUnder(refsDir, path)
}

func isUnder(dir, path string) bool {
	return strings.HasPrefix(path, dir+string(os.PathSeparator))
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
