// Package bucket stores sliding-window request counters.
package bucket

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one consumption attempt.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a rejected caller should wait.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// InMemoryStore implements a sliding window per key.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// tryConsume records cost hits when they fit under limit.
func (sw *slidingWindow) tryConsume(cost, limit int, now time.Time) Result {
	sw.evict(now)

	if len(sw.timestamps)+cost > limit {
		resetAt := now.Add(sw.window)
		if len(sw.timestamps) > 0 {
			resetAt = sw.timestamps[0].Add(sw.window)
		}
		return Result{Allowed: false, Limit: limit, ResetAt: resetAt}
	}
	for range cost {
		sw.timestamps = append(sw.timestamps, now)
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(sw.timestamps),
		ResetAt:   sw.timestamps[0].Add(sw.window),
	}
}

func (sw *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

type MemoryOption func(*InMemoryStore)

func WithNow(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllowN consumes cost hits from key's window.
func (s *InMemoryStore) AllowN(_ context.Context, key string, cost, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.windows[key]
	if !ok {
		sw = &slidingWindow{window: window}
		s.windows[key] = sw
	}
	return sw.tryConsume(cost, limit, s.now()), nil
}

// Reset clears key's window.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// PurgeIdle drops windows with no hits left, returning how many went.
func (s *InMemoryStore) PurgeIdle(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, sw := range s.windows {
		sw.evict(now)
		if len(sw.timestamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}
