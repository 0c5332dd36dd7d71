// Package janitor periodically removes expired challenges and tombstones.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strand/internal/platform/metrics"
)

// ChallengeStore exposes cleanup for expired challenges.
type ChallengeStore interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Result summarizes a single purge run.
type Result struct {
	Purged int
}

// Janitor purges expired challenges on an interval.
type Janitor struct {
	store    ChallengeStore
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Janitor)

// WithInterval overrides the purge interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(j *Janitor) {
		if interval > 0 {
			j.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) {
		j.metrics = m
	}
}

func WithNow(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

func New(store ChallengeStore, opts ...Option) (*Janitor, error) {
	if store == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	j := &Janitor{
		store:    store,
		interval: time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j, nil
}

// Start runs purges periodically until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.ErrorContext(ctx, "challenge purge failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single purge.
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	purged, err := j.store.PurgeExpired(ctx, j.now())
	if err != nil {
		return Result{}, fmt.Errorf("purge expired challenges: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddChallengesPurged(purged)
	}
	if purged > 0 {
		j.logger.DebugContext(ctx, "purged expired challenges", "count", purged)
	}
	return Result{Purged: purged}, nil
}
