package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/commitbook/internal"
	pkgconfig "github.com/starford/commitbook/pkg/config"
)

var version = "dev"

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("base") {
		cfg.Build.Base = cmd.String("base")
	}
	if cmd.IsSet("out") {
		cfg.Build.OutputDir = cmd.String("out")
	}
	if cmd.IsSet("backend") {
		cfg.Build.Backend = cmd.String("backend")
	}
	if cmd.IsSet("workers") {
		cfg.Build.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("precompute-diffs") {
		cfg.Build.PrecomputeDiffs = cmd.Bool("precompute-diffs")
	}
	if cmd.IsSet("watch") {
		cfg.Watch.Enabled = cmd.Bool("watch")
	}
	if cmd.IsSet("source") {
		cfg.Build.Source = cmd.String("source")
	}
	if src := cmd.Args().First(); src != "" {
		cfg.Build.Source = src
	}
	return cfg, cfg.Validate()
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.RunBuild(ctx, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("built %d steps into %s\n", len(res.Steps), res.OutputDir)
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func main() {
	buildFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "base",
			Usage:   "URL prefix the book is deployed under",
			Sources: cli.EnvVars("COMMITBOOK_BASE"),
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Output directory",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Git backend: exec or gogit",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Number of commits processed concurrently",
		},
		&cli.BoolFlag{
			Name:  "precompute-diffs",
			Usage: "Write per-step diffs into the output directory",
		},
	}
	sourceFlag := &cli.StringFlag{
		Name:  "source",
		Usage: "Repository path or URL to build before serving",
	}

	cmd := &cli.Command{
		Name:    "commitbook",
		Usage:   "Turn the commit history of a git repository into a step-by-step tutorial",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "build",
				Usage:     "Build a tutorial from a repository",
				ArgsUsage: "<source>",
				Flags:     buildFlags,
				Action:    runBuild,
			},
			{
				Name:  "serve",
				Usage: "Serve the built tutorial over HTTP",
				Flags: append([]cli.Flag{
					sourceFlag,
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Rebuild when new commits land in a local source",
					},
				}, buildFlags...),
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the built tutorial over MCP stdio",
				Flags:  append([]cli.Flag{sourceFlag}, buildFlags...),
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
