// Package booktest builds and indexes a commitbook from a test repository.
package booktest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/extract"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/storage"
)

// Book is a built and indexed output directory.
type Book struct {
	Dir   string
	Store *storage.FS
	DB    *index.DB
	// Ext reads the source repository; nil unless Build was given WithRepo.
	Ext *extract.Extractor
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t testing.TB) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "commitbook-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Build builds repoDir into a temp directory and syncs it into a fresh
// index. With withRepo the Book also carries an extractor over repoDir.
func Build(t testing.TB, repoDir string, precompute, withRepo bool) *Book {
	t.Helper()
	opts := build.Options{Git: gitrepo.DefaultOptions(), PrecomputeDiffs: precompute, Logger: Logger()}
	out := filepath.Join(t.TempDir(), "book")
	if _, err := build.New(opts).Run(context.Background(), repoDir, out); err != nil {
		t.Fatalf("build: %v", err)
	}
	store, err := storage.NewFS(out)
	if err != nil {
		t.Fatal(err)
	}
	db := TestDB(t)
	if _, err := index.Sync(db, store, Logger()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	b := &Book{Dir: out, Store: store, DB: db}
	if withRepo {
		backend, err := gitrepo.Open(context.Background(), repoDir, opts.Git)
		if err != nil {
			t.Fatal(err)
		}
		b.Ext = build.NewExtractor(backend, opts)
	}
	return b
}
