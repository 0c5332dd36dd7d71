package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"strand/pkg/platform/middleware/request"
)

// Publisher fans audit events out to a Store. In async mode events are
// queued and a full queue drops the event instead of stalling the caller.
type Publisher struct {
	store   Store
	queue   chan queued
	wg      sync.WaitGroup
	logger  *slog.Logger
	now     func() time.Time
	dropped atomic.Uint64

	// mu guards closed; senders hold it shared so Close never races a send.
	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx   context.Context
	event Event
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer persists events from a background goroutine through a
// queue of the given size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan queued, size)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPublisherNow(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Go(p.drain)
	}
	return p
}

func (p *Publisher) drain() {
	for q := range p.queue {
		if err := p.store.Append(q.ctx, q.event); err != nil {
			p.logger.ErrorContext(q.ctx, "failed to persist audit event",
				"error", err,
				"action", q.event.Action,
				"credential_id", q.event.CredentialID,
			)
		}
	}
}

// Close stops the background writer once the queue is empty. Events
// emitted afterwards are counted as dropped. Close is idempotent.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Dropped is the number of events lost to a full or closed queue.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Emit records an event, stamping the time and request id when missing.
// Emit on a nil Publisher is a no-op.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = request.GetRequestID(ctx)
	}
	if p.queue == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, event, "audit publisher closed, event dropped")
		return nil
	}
	select {
	case p.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		p.drop(ctx, event, "audit queue full, event dropped")
	}
	return nil
}

func (p *Publisher) drop(ctx context.Context, event Event, msg string) {
	p.dropped.Add(1)
	p.logger.WarnContext(ctx, msg,
		"action", event.Action,
		"credential_id", event.CredentialID,
	)
}

func (p *Publisher) List(ctx context.Context, credentialID string) ([]Event, error) {
	return p.store.ListByCredential(ctx, credentialID)
}
