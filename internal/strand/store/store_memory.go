// Package store persists issued strand credentials.
package store

import (
	"context"
	"fmt"

	"strand/internal/strand/models"
	platformsync "strand/pkg/platform/sync"
	"strand/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials in a sharded map keyed by id.
type InMemoryStore struct {
	items *platformsync.ShardedMap[*models.Credential]
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{items: platformsync.NewShardedMap[*models.Credential]()}
}

// Put stores a credential. Credentials are immutable, so an existing id is a
// conflict.
func (s *InMemoryStore) Put(_ context.Context, c *models.Credential) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("credential with id is required: %w", sentinel.ErrInvalidInput)
	}
	if _, inserted := s.items.PutIfAbsent(c.ID, c); !inserted {
		return fmt.Errorf("credential %s: %w", c.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Credential, error) {
	c, ok := s.items.Get(id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c, nil
}
