package sync

import (
	"sync"
)

const shardCount = 32

// ShardedMap is a map guarded by per-shard RW locks. Keys are distributed
// across shards by hash so operations on different keys rarely contend and
// no operation takes a global lock.
type ShardedMap[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewShardedMap creates an empty ShardedMap.
func NewShardedMap[V any]() *ShardedMap[V] {
	m := &ShardedMap[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

// Get returns the value stored for key.
func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Put stores value under key, replacing any previous value.
func (m *ShardedMap[V]) Put(key string, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// PutIfAbsent stores value only when key is not present.
// Returns the stored value and whether the insert happened.
func (m *ShardedMap[V]) PutIfAbsent(key string, value V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok {
		return existing, false
	}
	s.items[key] = value
	return value, true
}

// Delete removes key. Returns true if it was present.
func (m *ShardedMap[V]) Delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Update runs fn on the current value of key while holding the key's shard
// lock exclusively. fn receives ok=false when the key is absent. The returned
// value is stored when keep is true and deleted otherwise. This is the
// primitive for check-then-remove sequences that must be linearizable.
func (m *ShardedMap[V]) Update(key string, fn func(current V, ok bool) (next V, keep bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[key]
	next, keep := fn(current, ok)
	if keep {
		s.items[key] = next
		return
	}
	delete(s.items, key)
}

// DeleteFunc removes every entry for which pred returns true, one shard at a
// time, and returns the number of removed entries.
func (m *ShardedMap[V]) DeleteFunc(pred func(key string, value V) bool) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Range calls fn for every entry until fn returns false. Each shard is read
// under its own read lock; the view is not a global snapshot.
func (m *ShardedMap[V]) Range(fn func(key string, value V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the total number of entries.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

func (m *ShardedMap[V]) shardFor(key string) *shard[V] {
	return &m.shards[shardIndex(key)]
}

// shardIndex returns the shard index for key. Empty keys map to shard 0.
func shardIndex(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % shardCount)
}

// hashString provides a simple hash for shard selection.
// Uses djb2-style hashing for good distribution.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
