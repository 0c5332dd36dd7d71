// Package store persists outstanding challenges and enforces single use.
package store

import (
	"context"
	"fmt"
	"time"

	"strand/internal/challenge/models"
	platformsync "strand/pkg/platform/sync"
	"strand/pkg/platform/sentinel"
)

// defaultTombstoneTTL bounds how long a consumed challenge is remembered so
// a second completion reports a replay instead of not-found.
const defaultTombstoneTTL = 10 * time.Minute

// entry is either a live challenge or, once consumed, a tombstone.
type entry struct {
	challenge   *models.Challenge
	consumedAt  time.Time
	forgetAfter time.Time
}

func (e entry) consumed() bool {
	return e.challenge == nil
}

// InMemoryStore keeps challenges in a sharded map. Consume holds the key's
// shard lock for the whole check-then-remove so exactly one caller wins.
type InMemoryStore struct {
	items        *platformsync.ShardedMap[entry]
	tombstoneTTL time.Duration
}

type MemoryOption func(*InMemoryStore)

// WithTombstoneTTL sets how long consumed challenges are remembered.
func WithTombstoneTTL(ttl time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		if ttl > 0 {
			s.tombstoneTTL = ttl
		}
	}
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		items:        platformsync.NewShardedMap[entry](),
		tombstoneTTL: defaultTombstoneTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Save(_ context.Context, c *models.Challenge) error {
	if c == nil {
		return fmt.Errorf("challenge is required: %w", sentinel.ErrInvalidInput)
	}
	if _, inserted := s.items.PutIfAbsent(c.ID, entry{challenge: c}); !inserted {
		return fmt.Errorf("challenge %s: %w", c.ID, sentinel.ErrConflict)
	}
	return nil
}

// Consume removes the challenge and returns it. Whatever the outcome, the
// challenge cannot be consumed again.
// Returns sentinel.ErrNotFound for unknown ids, sentinel.ErrAlreadyUsed for
// consumed ones and sentinel.ErrExpired for ones past their TTL.
func (s *InMemoryStore) Consume(_ context.Context, id string, now time.Time) (*models.Challenge, error) {
	var (
		found *models.Challenge
		err   error
	)
	s.items.Update(id, func(current entry, ok bool) (entry, bool) {
		switch {
		case !ok:
			err = sentinel.ErrNotFound
			return entry{}, false
		case current.consumed():
			err = sentinel.ErrAlreadyUsed
			return current, true
		}
		found = current.challenge
		if found.IsExpired(now) {
			err = sentinel.ErrExpired
		}
		return entry{consumedAt: now, forgetAfter: now.Add(s.tombstoneTTL)}, true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// PurgeExpired drops expired challenges and stale tombstones.
func (s *InMemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	removed := s.items.DeleteFunc(func(_ string, e entry) bool {
		if e.consumed() {
			return now.After(e.forgetAfter)
		}
		return e.challenge.IsExpired(now)
	})
	return removed, nil
}

// Len returns the number of live challenges and tombstones.
func (s *InMemoryStore) Len() int {
	return s.items.Len()
}
