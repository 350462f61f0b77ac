package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/steps"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Build  BuildConfig       `yaml:"build"`
	Watch  WatchConfig       `yaml:"watch"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Build.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BuildConfig controls how a repository is turned into an output directory.
//
// Source may be empty for serve and mcp, which then read whatever OutputDir
// already holds.
type BuildConfig struct {
	Source          string          `yaml:"source"`
	OutputDir       string          `yaml:"output_dir"`
	Base            string          `yaml:"base"`
	Backend         string          `yaml:"backend"`
	GitBinary       string          `yaml:"git_binary"`
	Workers         int             `yaml:"workers"`
	CommandTimeout  time.Duration   `yaml:"command_timeout"`
	CloneDepth      int             `yaml:"clone_depth"`
	PrecomputeDiffs bool            `yaml:"precompute_diffs"`
	Ignore          []string        `yaml:"ignore"`
	Narrative       NarrativeConfig `yaml:"narrative"`
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.OutputDir, validation.Required),
		validation.Field(&c.Backend, validation.Required, validation.In(gitrepo.KindExec, gitrepo.KindGoGit)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.CommandTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CloneDepth, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return c.Narrative.Validate()
}

// Options converts the configuration into pipeline options.
func (c *BuildConfig) Options(logger *slog.Logger) build.Options {
	return build.Options{
		Git: gitrepo.Options{
			Kind:       c.Backend,
			Binary:     c.GitBinary,
			Timeout:    c.CommandTimeout,
			CloneDepth: c.CloneDepth,
		},
		Workers: c.Workers,
		Ignore:  c.Ignore,
		Narrative: steps.Options{
			StepFile:     c.Narrative.StepFile,
			OutputFile:   c.Narrative.OutputFile,
			Strategy:     c.Narrative.Strategy,
			CombinedFile: c.Narrative.CombinedFile,
			Workers:      c.Workers,
			Logger:       logger,
		},
		ReadmeFile:      c.Narrative.ReadmeFile,
		PrecomputeDiffs: c.PrecomputeDiffs,
		Base:            c.Base,
		Logger:          logger,
	}
}

// NarrativeConfig names the per-commit files authors write.
//
// Strategy "combined" reads one CombinedFile split on level-1 headings
// instead of a StepFile per commit. It is deprecated and logs a warning.
type NarrativeConfig struct {
	StepFile     string `yaml:"step_file"`
	OutputFile   string `yaml:"output_file"`
	ReadmeFile   string `yaml:"readme_file"`
	Strategy     string `yaml:"strategy"`
	CombinedFile string `yaml:"combined_file"`
}

// Validate validates the narrative configuration.
func (c *NarrativeConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.StepFile, validation.Required),
		validation.Field(&c.OutputFile, validation.Required),
		validation.Field(&c.ReadmeFile, validation.Required),
		validation.Field(&c.Strategy, validation.Required, validation.In(steps.StrategyPerCommit, steps.StrategyCombined)),
		validation.Field(&c.CombinedFile, validation.When(c.Strategy == steps.StrategyCombined, validation.Required)),
	); err != nil {
		return fmt.Errorf("narrative: %w", err)
	}
	return nil
}

// WatchConfig controls rebuilding on new commits while serving.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	git := gitrepo.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Build: BuildConfig{
			OutputDir:      "./book",
			Base:           "/",
			Backend:        git.Kind,
			GitBinary:      git.Binary,
			Workers:        4,
			CommandTimeout: git.Timeout,
			Narrative: NarrativeConfig{
				StepFile:     "STEP.md",
				OutputFile:   "OUTPUT.md",
				ReadmeFile:   "README.md",
				Strategy:     steps.StrategyPerCommit,
				CombinedFile: "STEPS.md",
			},
		},
		Watch: WatchConfig{
			Debounce: index.DefaultDebounce,
		},
		SQLite: SQLiteConfig{
			Path: "./commitbook.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
