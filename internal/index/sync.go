package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/checksum"
	"github.com/starford/commitbook/internal/models"
	"github.com/starford/commitbook/internal/parser"
	"github.com/starford/commitbook/internal/storage"
)

// LoadManifest reads and decodes the manifest of an output directory.
func LoadManifest(store storage.Provider) (*models.Manifest, error) {
	data, err := store.Read(build.ManifestFile)
	if err != nil {
		return nil, err
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("index: decode manifest: %w", err)
	}
	return &m, nil
}

// Report lists the slugs a Sync touched.
type Report struct {
	Indexed []string
	Removed []string
}

// Changed reports whether the sync modified the index.
func (r Report) Changed() bool {
	return len(r.Indexed)+len(r.Removed) > 0
}

// Sync brings the index up to date with an output directory:
//   - steps whose file checksum changed are parsed and upserted
//   - steps no longer in the manifest are deleted
//
// A missing manifest empties the index.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) (Report, error) {
	var rep Report
	var entries []models.StepEntry
	m, err := LoadManifest(store)
	switch {
	case err == nil:
		entries = m.Steps
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("sync: no manifest, clearing index")
	default:
		return rep, err
	}

	files, err := store.List(build.StepsDir, ".md")
	if err != nil {
		return rep, err
	}
	disk := make(map[string]string, len(files))
	for _, f := range files {
		disk[f.Path] = f.Checksum
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return rep, err
	}

	live := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		path := build.StepPath(e.Slug)
		sum, ok := disk[path]
		if !ok {
			logger.Warn("sync: step file missing", slog.String("slug", e.Slug), slog.String("path", path))
			continue
		}
		live[e.Slug] = struct{}{}
		if checksums[e.Slug] == sum {
			continue
		}
		data, err := store.Read(path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if err := indexStep(db, i, e, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			rep.Indexed = append(rep.Indexed, e.Slug)
			logger.Debug("sync: indexed", slog.String("slug", e.Slug))
		}
	}

	// Remove stale entries.
	var stale []string
	for slug := range checksums {
		if _, ok := live[slug]; !ok {
			stale = append(stale, slug)
		}
	}
	sort.Strings(stale)
	for _, slug := range stale {
		if err := db.DeleteStep(slug); err != nil {
			logger.Warn("sync: delete failed", slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		rep.Removed = append(rep.Removed, slug)
		logger.Debug("sync: removed stale", slog.String("slug", slug))
	}
	return rep, nil
}

// indexStep parses a step file and upserts it. position falls back to the
// manifest order when the slug is not numeric.
func indexStep(db *DB, position int, e models.StepEntry, data []byte) error {
	fm, body, _ := parser.SplitFrontmatter(data)
	title := e.Title
	if t, ok := parser.StringField(fm, "title"); ok {
		title = t
	}
	if n, err := strconv.Atoi(e.Slug); err == nil {
		position = n
	}
	row := StepRow{
		Slug:          e.Slug,
		Position:      position,
		Title:         title,
		Commit:        e.Commit,
		CommitMessage: e.CommitMessage,
		Checksum:      checksum.Sum(data),
		HasOutput:     e.HasOutput,
		Synthetic:     e.Synthetic,
	}
	return db.UpsertStep(row, strings.TrimSpace(body))
}
