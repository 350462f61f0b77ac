package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/checksum"
	"github.com/starford/commitbook/internal/models"
)

// Output layout, relative to the output directory.
const (
	ManifestFile = "manifest.json"
	ReadmeFile   = "README.md"
	StepsDir     = "steps"
)

// StepPath returns the narrative file of a step.
func StepPath(slug string) string { return StepsDir + "/" + slug + ".md" }

// OutputPath returns the output-log file of a step.
func OutputPath(slug string) string { return StepsDir + "/" + slug + ".output.md" }

// ChangesPath returns the precomputed change set of a step.
func ChangesPath(slug string) string { return StepsDir + "/" + slug + ".changes.json" }

// StepFrontmatter is the metadata block written at the top of every step file.
type StepFrontmatter struct {
	Title     string `yaml:"title"`
	Commit    string `yaml:"commit"`
	Slug      string `yaml:"slug"`
	Synthetic bool   `yaml:"synthetic,omitempty"`
}

type file struct {
	path string
	data []byte
}

// render produces every output file in memory, in a fixed order.
func render(meta models.ProjectMetadata, stepList []models.Step, changes []models.StepChanges, base string) ([]file, models.Manifest, error) {
	manifest := models.Manifest{
		Title:       meta.Title,
		Description: meta.Description,
		DocNumber:   meta.DocNumber,
		RepoName:    meta.RepoName,
		RepoPath:    meta.RepoPath,
		RepoURL:     meta.RepoURL,
		StartDate:   meta.StartDate,
		LastDate:    meta.LastDate,
		Base:        base,
		Steps:       make([]models.StepEntry, 0, len(stepList)),
	}

	files := make([]file, 0, 2+2*len(stepList))
	for i, s := range stepList {
		doc, err := RenderStep(s)
		if err != nil {
			return nil, models.Manifest{}, err
		}
		files = append(files, file{path: StepPath(s.Slug), data: doc})
		if s.HasOutput {
			files = append(files, file{path: OutputPath(s.Slug), data: []byte(s.Output)})
		}
		if changes != nil {
			data, err := marshalJSON(changes[i])
			if err != nil {
				return nil, models.Manifest{}, fmt.Errorf("build: encode changes %s: %w", s.Slug, err)
			}
			files = append(files, file{path: ChangesPath(s.Slug), data: data})
		}
		manifest.Steps = append(manifest.Steps, models.StepEntry{
			ID:            s.ID,
			Title:         s.Title,
			Commit:        s.Commit.Hash,
			Slug:          s.Slug,
			CommitMessage: s.Commit.Message,
			HasOutput:     s.HasOutput,
			Synthetic:     s.Synthetic,
			Checksum:      checksum.Sum(doc),
		})
	}

	readme := meta.Body
	if readme != "" && !strings.HasSuffix(readme, "\n") {
		readme += "\n"
	}
	files = append(files, file{path: ReadmeFile, data: []byte(readme)})

	data, err := marshalJSON(manifest)
	if err != nil {
		return nil, models.Manifest{}, fmt.Errorf("build: encode manifest: %w", err)
	}
	files = append(files, file{path: ManifestFile, data: data})
	return files, manifest, nil
}

// RenderStep returns the step file: YAML frontmatter followed by content.
func RenderStep(s models.Step) ([]byte, error) {
	fm, err := yaml.Marshal(StepFrontmatter{
		Title:     s.Title,
		Commit:    s.Commit.Hash,
		Slug:      s.Slug,
		Synthetic: s.Synthetic,
	})
	if err != nil {
		return nil, fmt.Errorf("build: encode frontmatter %s: %w", s.Slug, err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(s.Content)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// reattribute rewrites a RepositoryAccessError raised against a local clone
// so it names the source the user gave.
func reattribute(err error, source string) error {
	var rae *apperr.RepositoryAccessError
	if errors.As(err, &rae) && rae.Source != source {
		return &apperr.RepositoryAccessError{Source: source, Err: rae.Err}
	}
	return err
}
