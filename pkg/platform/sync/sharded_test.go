package sync

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedMap_PutGetDelete(t *testing.T) {
	m := NewShardedMap[int]()

	m.Put("strand_1", 1)
	v, ok := m.Get("strand_1")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, m.Delete("strand_1"))
	assert.False(t, m.Delete("strand_1"))
	_, ok = m.Get("strand_1")
	assert.False(t, ok)
}

func TestShardedMap_PutIfAbsent(t *testing.T) {
	m := NewShardedMap[string]()

	stored, inserted := m.PutIfAbsent("k", "first")
	assert.True(t, inserted)
	assert.Equal(t, "first", stored)

	stored, inserted = m.PutIfAbsent("k", "second")
	assert.False(t, inserted)
	assert.Equal(t, "first", stored)
}

func TestShardedMap_UpdateIsExclusivePerKey(t *testing.T) {
	m := NewShardedMap[bool]()
	m.Put("challenge", true)

	var winners int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 64 {
		wg.Go(func() {
			m.Update("challenge", func(current bool, ok bool) (bool, bool) {
				if ok && current {
					mu.Lock()
					winners++
					mu.Unlock()
				}
				return false, false
			})
		})
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 0, m.Len())
}

func TestShardedMap_DeleteFuncAndRange(t *testing.T) {
	m := NewShardedMap[int]()
	for i := range 100 {
		m.Put("key-"+strconv.Itoa(i), i)
	}

	removed := m.DeleteFunc(func(_ string, v int) bool { return v%2 == 0 })
	assert.Equal(t, 50, removed)
	assert.Equal(t, 50, m.Len())

	seen := 0
	m.Range(func(_ string, v int) bool {
		assert.Equal(t, 1, v%2)
		seen++
		return true
	})
	assert.Equal(t, 50, seen)
}

func TestShardIndex_Distribution(t *testing.T) {
	shards := make(map[int]bool)
	keys := []string{"strand_a", "strand_b", "chal_1", "chal_2", "user-1", "user-2"}
	for _, key := range keys {
		shards[shardIndex(key)] = true
	}
	assert.GreaterOrEqual(t, len(shards), 3, "expected keys to distribute across multiple shards")
	assert.Equal(t, 0, shardIndex(""))
}

func TestHashString(t *testing.T) {
	assert.Equal(t, hashString("test"), hashString("test"))
	assert.NotEqual(t, hashString("test1"), hashString("test2"))
	assert.Equal(t, uint32(0), hashString(""))
}
