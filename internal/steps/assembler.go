// Package steps turns an ordered commit list into tutorial steps.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/commitbook/internal/extract"
	"github.com/starford/commitbook/internal/models"
	"github.com/starford/commitbook/internal/parser"
)

// Narrative strategies.
const (
	// StrategyPerCommit reads the step file from each commit's own tree.
	StrategyPerCommit = "per-commit"
	// StrategyCombined splits one file at the tip into H1 sections and maps
	// them to commits by position. Deprecated.
	StrategyCombined = "combined"
)

// Placeholder is the content of a step whose narrative has no body.
const Placeholder = "_No narrative was written for this step._"

// Options configures an Assembler.
type Options struct {
	StepFile     string
	OutputFile   string
	Strategy     string
	CombinedFile string
	Workers      int
	Logger       *slog.Logger
}

// Assembler builds Steps from commits through an Extractor.
type Assembler struct {
	ext  *extract.Extractor
	opts Options
	log  *slog.Logger
}

// New creates an Assembler. Empty options fall back to STEP.md, OUTPUT.md,
// STEPS.md and the per-commit strategy.
func New(ext *extract.Extractor, opts Options) *Assembler {
	if opts.StepFile == "" {
		opts.StepFile = "STEP.md"
	}
	if opts.OutputFile == "" {
		opts.OutputFile = "OUTPUT.md"
	}
	if opts.CombinedFile == "" {
		opts.CombinedFile = "STEPS.md"
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyPerCommit
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{ext: ext, opts: opts, log: logger}
}

// Assemble returns one Step per commit, in commit order. Under the combined
// strategy the result is truncated to the shorter of commits and sections.
func (a *Assembler) Assemble(ctx context.Context, commits []models.Commit) ([]models.Step, error) {
	if a.opts.Strategy == StrategyCombined {
		return a.assembleCombined(ctx, commits)
	}

	steps := make([]models.Step, len(commits))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, c := range commits {
		g.Go(func() error {
			step, err := a.assembleOne(gCtx, i, c)
			if err != nil {
				return err
			}
			steps[i] = step
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("steps: assemble: %w", err)
	}
	return steps, nil
}

func (a *Assembler) assembleOne(ctx context.Context, i int, c models.Commit) (models.Step, error) {
	step := newStep(i, c)

	narrative, ok, err := a.ext.ReadText(ctx, c.Hash, a.opts.StepFile)
	if err != nil {
		return models.Step{}, err
	}
	if !ok || strings.TrimSpace(narrative) == "" {
		a.log.Warn("steps: narrative not found, using commit message",
			slog.String("commit", c.Hash),
			slog.String("file", a.opts.StepFile),
			slog.Int("step", i))
		narrative = ""
	}
	step.Title, step.Content, step.Synthetic = split(narrative, c.Message, i)

	if err := a.attachOutput(ctx, &step); err != nil {
		return models.Step{}, err
	}
	return step, nil
}

func (a *Assembler) attachOutput(ctx context.Context, step *models.Step) error {
	out, ok, err := a.ext.ReadText(ctx, step.Commit.Hash, a.opts.OutputFile)
	if err != nil {
		return err
	}
	if ok {
		step.HasOutput = true
		step.Output = out
	}
	return nil
}

func (a *Assembler) assembleCombined(ctx context.Context, commits []models.Commit) ([]models.Step, error) {
	a.log.Warn("steps: combined narrative strategy is deprecated, prefer per-commit step files",
		slog.String("file", a.opts.CombinedFile))
	if len(commits) == 0 {
		return nil, nil
	}

	tip := commits[len(commits)-1].Hash
	doc, ok, err := a.ext.ReadText(ctx, tip, a.opts.CombinedFile)
	if err != nil {
		return nil, fmt.Errorf("steps: read %s: %w", a.opts.CombinedFile, err)
	}
	if !ok {
		a.log.Warn("steps: combined narrative file not found",
			slog.String("file", a.opts.CombinedFile),
			slog.String("commit", tip))
	}
	sections := parser.SplitSections(doc)

	n := min(len(commits), len(sections))
	if len(commits) != len(sections) {
		a.log.Warn("steps: narrative sections do not match commits, truncating",
			slog.Int("commits", len(commits)),
			slog.Int("sections", len(sections)),
			slog.Int("steps", n))
	}

	steps := make([]models.Step, n)
	for i := range n {
		step := newStep(i, commits[i])
		step.Title = sections[i].Title
		step.Content = sections[i].Body
		if strings.TrimSpace(step.Content) == "" {
			step.Content = Placeholder
			step.Synthetic = true
		}
		if err := a.attachOutput(ctx, &step); err != nil {
			return nil, fmt.Errorf("steps: assemble: %w", err)
		}
		steps[i] = step
	}
	return steps, nil
}

func newStep(i int, c models.Commit) models.Step {
	id := strconv.Itoa(i)
	return models.Step{ID: id, Slug: id, Commit: c}
}

// split returns the narrative's title and its body without frontmatter or
// the title line. A frontmatter title wins over the first H1, which wins over
// the commit subject. synthetic reports that the body is the placeholder.
func split(narrative, subject string, i int) (title, content string, synthetic bool) {
	doc := parser.Parse([]byte(narrative))
	title = doc.Title
	if title == "" {
		title = fallbackTitle(subject, i)
	}
	content = strings.TrimSpace(parser.StripFirstHeading(doc.Body))
	if content == "" {
		return title, Placeholder, true
	}
	return title, content, false
}

// fallbackTitle is the commit subject, or "Step N" for an empty one.
func fallbackTitle(subject string, i int) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	return "Step " + strconv.Itoa(i+1)
}
