// Package build runs the commit-history-to-steps pipeline and writes its
// output directory.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/commitbook/internal/diff"
	"github.com/starford/commitbook/internal/extract"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/models"
	"github.com/starford/commitbook/internal/project"
	"github.com/starford/commitbook/internal/steps"
	"github.com/starford/commitbook/internal/storage"
)

// Options configures a Pipeline.
type Options struct {
	Git             gitrepo.Options
	Workers         int
	Ignore          []string
	Narrative       steps.Options
	ReadmeFile      string
	PrecomputeDiffs bool
	// Base is the deployed URL prefix recorded in the manifest.
	Base   string
	Logger *slog.Logger
}

// Result describes a finished build.
type Result struct {
	RunID     string
	OutputDir string
	Manifest  models.Manifest
	Steps     []models.Step
	Duration  time.Duration
}

// Pipeline builds an output directory from a repository.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Narrative.Logger = logger
	if opts.Narrative.Workers <= 0 {
		opts.Narrative.Workers = opts.Workers
	}
	return &Pipeline{opts: opts, logger: logger}
}

// NewExtractor returns an Extractor whose snapshots leave out the narrative
// convention files and the configured ignore patterns.
func NewExtractor(backend gitrepo.Backend, opts Options) *extract.Extractor {
	stepFile, outputFile := opts.Narrative.StepFile, opts.Narrative.OutputFile
	if stepFile == "" {
		stepFile = "STEP.md"
	}
	if outputFile == "" {
		outputFile = "OUTPUT.md"
	}
	ignore := append([]string{"/" + stepFile, "/" + outputFile}, opts.Ignore...)
	return extract.New(backend, extract.Options{
		Ignore:  ignore,
		Workers: opts.Workers,
		Logger:  opts.Logger,
	})
}

// Run builds source into outDir. Everything is computed and written to a
// staging directory first; outDir is only replaced once that succeeded.
func (p *Pipeline) Run(ctx context.Context, source, outDir string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))

	logger.Info("build: started",
		slog.String("source", source),
		slog.String("output", outDir),
		slog.String("backend", p.opts.Git.Kind))

	checkout, err := gitrepo.Fetch(ctx, source, p.opts.Git, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := checkout.Close(); err != nil {
			logger.Warn("build: cleanup failed", slog.String("error", err.Error()))
		}
	}()

	backend, err := gitrepo.Open(ctx, checkout.Dir, p.opts.Git)
	if err != nil {
		return nil, reattribute(err, source)
	}
	commits, err := backend.Commits(ctx)
	if err != nil {
		return nil, reattribute(err, source)
	}
	logger.Info("build: commits enumerated", slog.Int("commits", len(commits)))

	popts := p.opts
	popts.Logger = logger
	ext := NewExtractor(backend, popts)

	narrative := p.opts.Narrative
	narrative.Logger = logger
	stepList, err := steps.New(ext, narrative).Assemble(ctx, commits)
	if err != nil {
		return nil, err
	}

	meta, err := project.NewResolver(ext, p.opts.ReadmeFile, logger).
		Resolve(ctx, project.Source{Input: checkout.Input, Dir: checkout.Dir}, commits)
	if err != nil {
		return nil, err
	}

	var changes []models.StepChanges
	if p.opts.PrecomputeDiffs {
		changes, err = precompute(ctx, ext, stepList)
		if err != nil {
			return nil, err
		}
	}

	files, manifest, err := render(meta, stepList, changes, p.opts.Base)
	if err != nil {
		return nil, err
	}

	if err := p.write(outDir, runID, files); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     runID,
		OutputDir: outDir,
		Manifest:  manifest,
		Steps:     stepList,
		Duration:  time.Since(start),
	}
	logger.Info("build: completed",
		slog.Int("steps", len(stepList)),
		slog.Int("files", len(files)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (p *Pipeline) write(outDir, runID string, files []file) error {
	staging, err := storage.NewStaging(outDir, runID)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer func() { _ = staging.Discard() }()

	for _, f := range files {
		if err := staging.Write(f.path, f.data); err != nil {
			return fmt.Errorf("build: %w", err)
		}
	}
	if err := staging.Publish(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return nil
}

// precompute diffs every step against its predecessor. Snapshots are loaded
// one commit at a time so only two are held in memory.
func precompute(ctx context.Context, ext *extract.Extractor, stepList []models.Step) ([]models.StepChanges, error) {
	out := make([]models.StepChanges, len(stepList))
	var previous []models.FileNode
	for i, s := range stepList {
		current, err := ext.Snapshot(ctx, s.Commit.Hash)
		if err != nil {
			return nil, fmt.Errorf("build: snapshot %s: %w", s.Commit.Hash, err)
		}
		changed := diff.ChangedFiles(current, previous)
		sc := models.StepChanges{
			Slug:    s.Slug,
			Commit:  s.Commit.Hash,
			Changed: make([]models.FileChange, 0, len(changed)),
			Deleted: diff.Deleted(current, previous),
			Files:   make([]models.FileNode, len(current)),
		}
		for j, n := range current {
			sc.Files[j] = models.FileNode{Path: n.Path, IsBinary: n.IsBinary}
		}
		for _, path := range changed {
			res, err := diff.Unified(path, current, previous)
			if err != nil {
				return nil, fmt.Errorf("build: diff %s at %s: %w", path, s.Commit.Hash, err)
			}
			sc.Changed = append(sc.Changed, models.FileChange{
				Path:   res.Path,
				New:    res.New,
				Binary: res.Binary,
				Diff:   res.Diff,
			})
		}
		if sc.Deleted == nil {
			sc.Deleted = []string{}
		}
		out[i] = sc
		previous = current
	}
	return out, nil
}
