// Package filter is the probabilistic fast path in front of the revocation
// store. A negative answer is conclusive; a positive one must be confirmed.
package filter

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	DefaultCapacity = 100_000
	DefaultFPRate   = 0.001
)

// Filter is a Bloom filter sized for capacity entries at the configured
// false-positive rate. It is safe for concurrent use.
type Filter struct {
	mu       sync.RWMutex
	bf       *bloom.BloomFilter
	capacity uint
	fpRate   float64
	entries  uint
}

// New returns an empty filter. Non-positive arguments fall back to the
// defaults.
func New(capacity uint, fpRate float64) *Filter {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFPRate
	}
	return &Filter{
		bf:       bloom.NewWithEstimates(capacity, fpRate),
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// Add inserts id. Adding an id twice counts it twice towards saturation.
func (f *Filter) Add(id string) {
	f.mu.Lock()
	f.bf.AddString(id)
	f.entries++
	f.mu.Unlock()
}

// MayContain reports whether id might have been added.
func (f *Filter) MayContain(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.TestString(id)
}

// Entries is the number of Add calls so far.
func (f *Filter) Entries() uint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.entries
}

func (f *Filter) Capacity() uint {
	return f.capacity
}

func (f *Filter) FPRate() float64 {
	return f.fpRate
}

// Saturated reports whether more entries were added than the filter was
// sized for, so the false-positive bound no longer holds.
func (f *Filter) Saturated() bool {
	return f.Entries() > f.capacity
}

// EstimatedFPRate is the theoretical false-positive rate at the current fill.
func (f *Filter) EstimatedFPRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, k, n := float64(f.bf.Cap()), float64(f.bf.K()), float64(f.entries)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
