// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/commitbook/internal/api"
	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/extract"
	"github.com/starford/commitbook/internal/gitrepo"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/mcpserver"
	"github.com/starford/commitbook/internal/sse"
	"github.com/starford/commitbook/internal/stepservice"
	"github.com/starford/commitbook/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger builds the structured JSON logger. def is used unless WithLogOutput
// overrode it.
func (a *application) logger(def io.Writer) *slog.Logger {
	w := a.logOutput
	if w == nil {
		w = def
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildOptions returns pipeline options for cfg. A remote source is cloned
// into a temporary directory that is gone after the build, so its diffs must
// be computed up front.
func buildOptions(cfg *BuildConfig, logger *slog.Logger) build.Options {
	opts := cfg.Options(logger)
	if gitrepo.IsRemote(cfg.Source) {
		opts.PrecomputeDiffs = true
	}
	return opts
}

// RunBuild builds the configured source once and returns the result.
func RunBuild(ctx context.Context, opts ...Option) (*build.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config
	logger := app.logger(os.Stderr)

	if cfg.Build.Source == "" {
		return nil, fmt.Errorf("build: no source repository given")
	}

	res, err := build.New(buildOptions(&cfg.Build, logger)).Run(ctx, cfg.Build.Source, cfg.Build.OutputDir)
	if err != nil {
		return nil, err
	}
	logger.Info("build: finished",
		slog.String("run_id", res.RunID),
		slog.String("output", res.OutputDir),
		slog.Int("steps", len(res.Steps)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// book is a built output directory opened for reading.
type book struct {
	store     *storage.FS
	db        *index.DB
	ext       *extract.Extractor
	rebuilder *rebuilder
}

func (b *book) Close() error {
	return b.db.Close()
}

// openBook builds the configured source if there is one, then opens and
// indexes the output directory.
func openBook(ctx context.Context, cfg *Config, logger *slog.Logger) (*book, error) {
	bopts := buildOptions(&cfg.Build, logger)
	b := &book{}

	if cfg.Build.Source != "" {
		b.rebuilder = &rebuilder{
			pipeline: build.New(bopts),
			source:   cfg.Build.Source,
			outDir:   cfg.Build.OutputDir,
			logger:   logger,
		}
		if err := b.rebuilder.rebuildWait(ctx); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.Build.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Build.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	b.store = store

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	b.db = db

	if _, err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	if src := cfg.Build.Source; src != "" && !gitrepo.IsRemote(src) {
		backend, err := gitrepo.Open(ctx, src, bopts.Git)
		if err != nil {
			db.Close()
			return nil, err
		}
		b.ext = build.NewExtractor(backend, bopts)
	}

	if b.rebuilder != nil {
		b.rebuilder.db = db
		b.rebuilder.store = store
	}
	return b, nil
}

// Run serves the read API for the configured output directory.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger(os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source", cfg.Build.Source),
		slog.String("output_dir", cfg.Build.OutputDir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	bk, err := openBook(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bk.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := stepservice.NewService(bk.store, bk.db, bk.ext)

	var rb api.Rebuilder
	if bk.rebuilder != nil {
		bk.rebuilder.broker = broker
		rb = bk.rebuilder
	}
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, rb)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Manifest(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no build"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Rebuild on new commits.
	if cfg.Watch.Enabled {
		switch {
		case bk.rebuilder == nil:
			logger.Warn("watch: no source configured, watcher disabled")
		case gitrepo.IsRemote(cfg.Build.Source):
			logger.Warn("watch: remote sources cannot be watched", slog.String("source", cfg.Build.Source))
		default:
			// A watcher failure leaves the API serving the last build.
			g.Go(func() error {
				if err := index.Watch(gCtx, cfg.Build.Source, cfg.Watch.Debounce, logger, bk.rebuilder.rebuildWait); err != nil {
					logger.Error("watch: stopped", slog.String("source", cfg.Build.Source), slog.String("error", err.Error()))
				}
				return nil
			})
		}
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Open event streams would otherwise hold Shutdown until its deadline.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the configured output directory over MCP stdio. Logs go to
// stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger(os.Stderr)

	bk, err := openBook(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer bk.Close()

	svc := stepservice.NewService(bk.store, bk.db, bk.ext)
	logger.Info("mcp: serving on stdio", slog.String("output_dir", app.config.Build.OutputDir))
	return mcpserver.New(svc, app.version).ServeStdio()
}
