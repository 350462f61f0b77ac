// Package project resolves project-level metadata for a build.
package project

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/commitbook/internal/extract"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/models"
	"github.com/starford/commitbook/internal/parser"
)

const dateLayout = "2006-01-02"

// Source identifies the repository being built.
type Source struct {
	// Input is the local path or URL given by the user.
	Input string
	// Dir is the local directory holding the repository.
	Dir string
}

// Resolver derives ProjectMetadata from the README at the tip commit and the
// repository itself.
type Resolver struct {
	ext    *extract.Extractor
	readme string
	logger *slog.Logger
}

// NewResolver creates a Resolver reading readmeFile ("README.md" if empty).
func NewResolver(ext *extract.Extractor, readmeFile string, logger *slog.Logger) *Resolver {
	if readmeFile == "" {
		readmeFile = "README.md"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{ext: ext, readme: readmeFile, logger: logger}
}

// Resolve builds the metadata. commits must be non-empty and oldest-first.
func (r *Resolver) Resolve(ctx context.Context, src Source, commits []models.Commit) (models.ProjectMetadata, error) {
	if len(commits) == 0 {
		return models.ProjectMetadata{}, fmt.Errorf("project: resolve %s: no commits", src.Input)
	}
	first, last := commits[0], commits[len(commits)-1]

	remote, err := r.ext.Backend().RemoteURL(ctx)
	if err != nil {
		return models.ProjectMetadata{}, fmt.Errorf("project: remote url: %w", err)
	}

	meta := models.ProjectMetadata{
		RepoPath:  src.Input,
		RepoURL:   gitrepo.BrowseURL(remote),
		StartDate: first.Date.Format(dateLayout),
		LastDate:  last.Date.Format(dateLayout),
	}
	if remote != "" {
		meta.RepoName = gitrepo.RepoName(remote)
	}
	if meta.RepoName == "" {
		meta.RepoName = gitrepo.RepoName(src.Dir)
	}

	readme, ok, err := r.ext.ReadText(ctx, last.Hash, r.readme)
	if err != nil {
		return models.ProjectMetadata{}, fmt.Errorf("project: read %s: %w", r.readme, err)
	}
	if ok {
		fm := r.readFrontmatter(readme, &meta)
		meta.Title, _ = parser.StringField(fm, "title")
		meta.Description, _ = parser.StringField(fm, "description")
		meta.DocNumber, _ = parser.StringField(fm, "docNumber")
	}

	if meta.Title == "" {
		meta.Title = TitleFromName(meta.RepoName)
	}
	if meta.DocNumber == "" {
		meta.DocNumber = DocNumber(meta.Title, first.Date.Year())
	}
	return meta, nil
}

func (r *Resolver) readFrontmatter(readme string, meta *models.ProjectMetadata) map[string]any {
	fm, body, ok := parser.SplitFrontmatter([]byte(readme))
	if !ok && bytes.HasPrefix(bytes.TrimLeft([]byte(readme), " \t\r\n"), []byte("---")) {
		r.logger.Debug("project: frontmatter skipped, using README as is",
			slog.String("file", r.readme))
	}
	meta.Body = parser.StripFirstHeading(body)
	return fm
}

// TitleFromName turns a repository name into a title: dashes and
// underscores become spaces and each word is capitalised.
func TitleFromName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	return strings.Join(words, " ")
}

// DocNumber returns the uppercase initials of title's words followed by
// "-" and year.
func DocNumber(title string, year int) string {
	var b strings.Builder
	for _, w := range strings.Fields(title) {
		first, _ := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(first))
	}
	return fmt.Sprintf("%s-%04d", b.String(), year)
}
