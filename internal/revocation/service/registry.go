// Package service implements the revocation registry: an authoritative store
// fronted by a Bloom filter that is rebuilt in the background.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"strand/internal/audit"
	"strand/internal/platform/metrics"
	"strand/internal/platform/tracer"
	"strand/internal/revocation/filter"
	"strand/internal/revocation/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
)

// Store is the authoritative revocation list.
// Error Contract:
// - Insert returns the existing record and inserted=false for known ids
// - Get returns sentinel.ErrNotFound for ids that were never revoked
// - infrastructure failures wrap sentinel.ErrUnavailable
type Store interface {
	Insert(ctx context.Context, rec models.Record) (models.Record, bool, error)
	Get(ctx context.Context, id string) (models.Record, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// CheckpointPublisher ships signed checkpoints to external consumers.
type CheckpointPublisher interface {
	Publish(ctx context.Context, cp *models.Checkpoint) error
}

type Option func(*Registry)

// Registry answers revocation queries. Once Revoke returns, every later
// IsRevoked for that id reports true, including across filter rebuilds.
type Registry struct {
	store     Store
	signer    ed25519.PrivateKey
	publisher CheckpointPublisher
	auditor   *audit.Publisher
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
	now       func() time.Time

	capacity uint
	fpRate   float64

	filter atomic.Pointer[filter.Filter]

	// mu orders filter inserts against the rebuild swap.
	mu         sync.Mutex
	rebuilding bool
	pending    []string

	// rebuildMu serializes rebuilds.
	rebuildMu sync.Mutex
	rebuildCh chan struct{}
}

// WithFilterSizing sets the capacity and false-positive bound of new filters.
func WithFilterSizing(capacity uint, fpRate float64) Option {
	return func(r *Registry) {
		r.capacity = capacity
		r.fpRate = fpRate
	}
}

func WithPublisher(p CheckpointPublisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

func WithAuditor(p *audit.Publisher) Option {
	return func(r *Registry) {
		r.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a registry with an empty filter. Call Rebuild before serving
// traffic when the store may already hold revocations.
func New(store Store, signer ed25519.PrivateKey, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		signer:    signer,
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
		now:       time.Now,
		capacity:  filter.DefaultCapacity,
		fpRate:    filter.DefaultFPRate,
		rebuildCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.filter.Store(filter.New(r.capacity, r.fpRate))
	return r
}

// Revoke records the revocation and adds the id to the filter. Revoking an
// already revoked id returns the original record.
func (r *Registry) Revoke(ctx context.Context, credentialID, reason string) (rec *models.Record, err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanRevoke, tracer.String(tracer.AttrCredentialID, credentialID))
	defer func() { span.End(err) }()

	if credentialID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential_id is required")
	}
	if reason == "" {
		reason = models.ReasonUnspecified
	}

	stored, inserted, err := r.store.Insert(ctx, models.Record{
		CredentialID: credentialID,
		Reason:       reason,
		RevokedAt:    r.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidInput) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid revocation")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "revocation store unavailable")
	}

	// A repeat still reaches the filter when an earlier call stored the
	// record but failed before adding it.
	r.addToFilter(credentialID, inserted)

	if !inserted {
		return &stored, nil
	}

	if r.metrics != nil {
		r.metrics.IncrementRevocations(reason)
	}
	r.logger.InfoContext(ctx, "credential revoked", "credential_id", credentialID, "reason", reason)
	if err := r.auditor.Emit(ctx, audit.Event{
		CredentialID: credentialID,
		Action:       string(audit.EventStrandRevoked),
		Decision:     audit.DecisionDeny,
		Reason:       reason,
	}); err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "credential_id", credentialID)
	}
	return &stored, nil
}

func (r *Registry) addToFilter(id string, inserted bool) {
	r.mu.Lock()
	current := r.filter.Load()
	if inserted || !current.MayContain(id) {
		current.Add(id)
	}
	if r.rebuilding {
		r.pending = append(r.pending, id)
	}
	saturated := current.Saturated()
	r.mu.Unlock()

	if saturated {
		r.RequestRebuild()
	}
}

// IsRevoked reports whether the credential has been revoked. Filter
// negatives are answered without touching the store.
func (r *Registry) IsRevoked(ctx context.Context, credentialID string) (bool, error) {
	if !r.filter.Load().MayContain(credentialID) {
		return false, nil
	}
	_, err := r.store.Get(ctx, credentialID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		if r.metrics != nil {
			r.metrics.IncrementFilterFalsePositives()
		}
		return false, nil
	default:
		return false, fmt.Errorf("confirm revocation: %w", err)
	}
}

// Get returns the stored record for a revoked credential.
func (r *Registry) Get(ctx context.Context, credentialID string) (*models.Record, error) {
	rec, err := r.store.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential is not revoked")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "revocation store unavailable")
	}
	return &rec, nil
}

// RequestRebuild asks the rebuild worker for a new filter. It never blocks.
func (r *Registry) RequestRebuild() {
	select {
	case r.rebuildCh <- struct{}{}:
	default:
	}
}

// RebuildRequests delivers rebuild requests to the background worker.
func (r *Registry) RebuildRequests() <-chan struct{} {
	return r.rebuildCh
}

// FilterEntries is the number of entries in the live filter.
func (r *Registry) FilterEntries() uint {
	return r.filter.Load().Entries()
}

// Rebuild repopulates a fresh filter from the store and swaps it in. Reads
// keep using the old filter meanwhile. Revocations that land during the
// rebuild are replayed onto the new filter before the swap. Concurrent
// calls run one after another. On error or cancellation the old filter
// stays in place.
func (r *Registry) Rebuild(ctx context.Context) (err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanFilterRebuild)
	defer func() { span.End(err) }()

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.rebuilding = true
	r.pending = nil
	r.mu.Unlock()

	abort := func() {
		r.mu.Lock()
		r.rebuilding = false
		r.pending = nil
		r.mu.Unlock()
	}

	ids, err := r.store.ListIDs(ctx)
	if err != nil {
		abort()
		return dErrors.Wrap(err, dErrors.CodeTransient, "failed to list revocations")
	}

	capacity := r.capacity
	if need := uint(len(ids)) * 2; need > capacity {
		capacity = need
	}
	next := filter.New(capacity, r.fpRate)
	for i, id := range ids {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				abort()
				return err
			}
		}
		next.Add(id)
	}

	r.mu.Lock()
	for _, id := range r.pending {
		next.Add(id)
	}
	r.filter.Store(next)
	r.rebuilding = false
	r.pending = nil
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncrementFilterRebuilds()
		r.metrics.SetFilterEntries(int(next.Entries()))
	}
	r.logger.InfoContext(ctx, "revocation filter rebuilt",
		"entries", next.Entries(),
		"capacity", capacity,
	)
	return nil
}
