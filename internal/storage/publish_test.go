package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStaging_PublishReplacesOutput(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(filepath.Join(target, "steps"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "steps", "9.md"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := NewStaging(target, "run1")
	if err != nil {
		t.Fatalf("NewStaging: %v", err)
	}
	defer st.Discard()
	if err := st.Write("manifest.json", []byte("{}\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := st.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "steps", "9.md")); !os.IsNotExist(err) {
		t.Error("stale file survived publish")
	}
	got, err := os.ReadFile(filepath.Join(target, "manifest.json"))
	if err != nil || string(got) != "{}\n" {
		t.Errorf("manifest = %q, %v", got, err)
	}
	siblings, _ := filepath.Glob(target + ".*")
	if len(siblings) != 0 {
		t.Errorf("leftover siblings: %v", siblings)
	}
}

func TestStaging_DiscardKeepsOutput(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "manifest.json"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := NewStaging(target, "run2")
	if err != nil {
		t.Fatalf("NewStaging: %v", err)
	}
	_ = st.Write("manifest.json", []byte("new"))
	if err := st.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(target, "manifest.json"))
	if string(got) != "old" {
		t.Errorf("manifest = %q, want old", got)
	}
	if _, err := os.Stat(st.Root()); !os.IsNotExist(err) {
		t.Error("staging dir not removed")
	}
	if err := st.Publish(); err == nil {
		t.Error("publish after discard should fail")
	}
}

func TestStaging_PublishWithoutPreviousOutput(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out")
	st, err := NewStaging(target, "run3")
	if err != nil {
		t.Fatalf("NewStaging: %v", err)
	}
	_ = st.Write("README.md", []byte("hi"))
	if err := st.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "README.md")); err != nil {
		t.Errorf("README missing: %v", err)
	}
}
