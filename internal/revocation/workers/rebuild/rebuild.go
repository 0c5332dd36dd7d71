// Package rebuild keeps the revocation filter compact. It rebuilds on
// demand when the filter saturates and on a slow periodic schedule, and
// publishes a checkpoint after each periodic pass.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strand/internal/revocation/models"
)

// Registry is the part of the revocation registry the worker drives.
type Registry interface {
	Rebuild(ctx context.Context) error
	RebuildRequests() <-chan struct{}
	Checkpoint(ctx context.Context) (*models.Checkpoint, error)
}

// Worker runs filter rebuilds in the background.
type Worker struct {
	registry   Registry
	interval   time.Duration
	checkpoint bool
	logger     *slog.Logger
}

type Option func(*Worker)

// WithInterval overrides the periodic rebuild interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithCheckpoints publishes a checkpoint after every periodic rebuild.
func WithCheckpoints() Option {
	return func(w *Worker) {
		w.checkpoint = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func New(registry Registry, opts ...Option) (*Worker, error) {
	if registry == nil {
		return nil, fmt.Errorf("revocation registry is required")
	}
	w := &Worker{
		registry: registry,
		interval: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start serves rebuild requests and the periodic schedule until ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.registry.RebuildRequests():
			if err := w.registry.Rebuild(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "requested filter rebuild failed", "error", err)
			}
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "periodic filter rebuild failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce rebuilds the filter and, when enabled, publishes a checkpoint.
func (w *Worker) RunOnce(ctx context.Context) error {
	if err := w.registry.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild filter: %w", err)
	}
	if !w.checkpoint {
		return nil
	}
	cp, err := w.registry.Checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	w.logger.InfoContext(ctx, "revocation checkpoint taken", "count", cp.Count, "digest", cp.Digest.Hex())
	return nil
}
