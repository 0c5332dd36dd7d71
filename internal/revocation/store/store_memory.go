// Package store holds the authoritative revocation list.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"strand/internal/revocation/models"
	"strand/pkg/platform/sentinel"
)

// InMemoryStore keeps revocations in a map. Suitable for tests and single
// instance deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.Record)}
}

// Insert adds rec unless the id is already revoked, in which case the
// existing record is returned with inserted=false.
func (s *InMemoryStore) Insert(_ context.Context, rec models.Record) (models.Record, bool, error) {
	if rec.CredentialID == "" {
		return models.Record{}, false, fmt.Errorf("credential id is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.CredentialID]; ok {
		return existing, false, nil
	}
	s.records[rec.CredentialID] = rec
	return rec, true, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}

// ListIDs returns every revoked id in ascending order.
func (s *InMemoryStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}
