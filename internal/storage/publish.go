package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Staging is a sibling directory of an output directory that receives a
// complete build before it replaces the output.
type Staging struct {
	*FS
	target string
	done   bool
}

// NewStaging creates "<target>.staging-<runID>" next to target.
func NewStaging(target, runID string) (*Staging, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve target: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir parent: %w", err)
	}
	dir := abs + ".staging-" + runID
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create staging: %w", err)
	}
	fsys, err := NewFS(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &Staging{FS: fsys, target: abs}, nil
}

// Publish replaces the target directory with the staging directory. The old
// output is moved aside first and restored if the final rename fails.
func (s *Staging) Publish() error {
	if s.done {
		return fmt.Errorf("storage: staging already published or discarded")
	}
	backup := s.root + ".old"
	hadTarget := false
	if _, err := os.Stat(s.target); err == nil {
		if err := os.Rename(s.target, backup); err != nil {
			return fmt.Errorf("storage: move old output aside: %w", err)
		}
		hadTarget = true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("storage: stat target: %w", err)
	}

	if err := os.Rename(s.root, s.target); err != nil {
		if hadTarget {
			_ = os.Rename(backup, s.target)
		}
		return fmt.Errorf("storage: publish: %w", err)
	}
	s.done = true
	if hadTarget {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("storage: remove old output: %w", err)
		}
	}
	return nil
}

// Discard removes the staging directory unless it was published. It is safe
// to defer.
func (s *Staging) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("storage: discard staging: %w", err)
	}
	return nil
}
