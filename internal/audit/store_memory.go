package audit

import (
	"context"
	"slices"
	"sync"
)

// DefaultRetention bounds the events kept per credential in memory.
const DefaultRetention = 256

// InMemoryStore keeps the most recent events of each credential.
type InMemoryStore struct {
	mu        sync.RWMutex
	byCred    map[string][]Event
	retention int
}

func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithRetention(DefaultRetention)
}

// NewInMemoryStoreWithRetention keeps at most n events per credential; older
// ones are discarded first.
func NewInMemoryStoreWithRetention(n int) *InMemoryStore {
	if n <= 0 {
		n = DefaultRetention
	}
	return &InMemoryStore{byCred: make(map[string][]Event), retention: n}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append(s.byCred[event.CredentialID], event)
	if over := len(events) - s.retention; over > 0 {
		events = slices.Delete(events, 0, over)
	}
	s.byCred[event.CredentialID] = events
	return nil
}

func (s *InMemoryStore) ListByCredential(_ context.Context, credentialID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byCred[credentialID]), nil
}
