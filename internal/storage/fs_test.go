package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func tempOutput(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempOutput(t)
	content := []byte("---\ntitle: Hello\n---\nWorld\n")
	if err := s.Write("steps/0.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("steps/0.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissing(t *testing.T) {
	s := tempOutput(t)
	_, err := s.Read("manifest.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestList(t *testing.T) {
	s := tempOutput(t)
	_ = s.Write("steps/1.md", []byte("b"))
	_ = s.Write("steps/0.md", []byte("a"))
	_ = s.Write("steps/0.output.md", []byte("out"))
	_ = s.Write("manifest.json", []byte("{}"))

	items, err := s.List("steps", ".md")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if items[0].Path != "steps/0.md" || items[2].Path != "steps/1.md" {
		t.Errorf("order = %s, %s, %s", items[0].Path, items[1].Path, items[2].Path)
	}
	if items[0].Checksum == "" || items[0].Checksum == items[2].Checksum {
		t.Error("checksums not populated")
	}
}

func TestList_MissingDir(t *testing.T) {
	s := tempOutput(t)
	items, err := s.List("steps", ".md")
	if err != nil || len(items) != 0 {
		t.Errorf("List = %v, %v", items, err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempOutput(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempOutput(t)
	_ = s.Write("manifest.json", []byte("original"))
	if err := s.Write("manifest.json", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("manifest.json")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "commitbook-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
