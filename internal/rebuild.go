package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/commitbook/internal/apperr"
	"github.com/starford/commitbook/internal/build"
	"github.com/starford/commitbook/internal/index"
	"github.com/starford/commitbook/internal/sse"
	"github.com/starford/commitbook/internal/storage"
)

// rebuilder runs the pipeline for the configured source, re-syncs the index
// and tells SSE clients. Only one build runs at a time.
type rebuilder struct {
	mu       sync.Mutex
	pipeline *build.Pipeline
	source   string
	outDir   string

	// Set once the output directory exists; nil during the initial build.
	db     *index.DB
	store  storage.Provider
	broker *sse.Broker
	logger *slog.Logger
}

// Rebuild is the POST /api/build entry point. It refuses to queue behind a
// running build.
func (r *rebuilder) Rebuild(ctx context.Context) (*build.Result, error) {
	if !r.mu.TryLock() {
		return nil, fmt.Errorf("rebuild: %w", apperr.ErrConflict)
	}
	defer r.mu.Unlock()
	return r.run(ctx)
}

// rebuildWait is the watcher entry point. It waits for a running build so
// that a commit landing mid-build is not lost.
func (r *rebuilder) rebuildWait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.run(ctx)
	return err
}

func (r *rebuilder) run(ctx context.Context) (*build.Result, error) {
	res, err := r.pipeline.Run(ctx, r.source, r.outDir)
	if err != nil {
		if r.broker != nil {
			r.broker.PublishBuildFailed(err)
		}
		return nil, err
	}
	if r.db == nil {
		return res, nil
	}

	rep, err := index.Sync(r.db, r.store, r.logger)
	if err != nil {
		return nil, fmt.Errorf("rebuild: sync: %w", err)
	}
	if rep.Changed() {
		r.logger.Info("rebuild: index synced",
			slog.String("run_id", res.RunID),
			slog.Int("indexed", len(rep.Indexed)),
			slog.Int("removed", len(rep.Removed)))
	} else {
		r.logger.Debug("rebuild: no step changed", slog.String("run_id", res.RunID))
	}

	if r.broker != nil {
		r.broker.PublishBuild(sse.BuildCompleted{
			RunID:      res.RunID,
			Steps:      len(res.Steps),
			DurationMS: res.Duration.Milliseconds(),
		}, rep.Indexed, rep.Removed)
	}
	return res, nil
}
