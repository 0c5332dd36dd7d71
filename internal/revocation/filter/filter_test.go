package filter

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	for i := range 1000 {
		f.Add("strand_" + strconv.Itoa(i))
	}
	for i := range 1000 {
		assert.True(t, f.MayContain("strand_"+strconv.Itoa(i)))
	}
	assert.Equal(t, uint(1000), f.Entries())
	assert.False(t, f.Saturated())
}

func TestFilter_FalsePositiveRateNearBound(t *testing.T) {
	f := New(5000, 0.01)
	for i := range 5000 {
		f.Add("revoked_" + strconv.Itoa(i))
	}
	hits := 0
	const probes = 20000
	for i := range probes {
		if f.MayContain("live_" + strconv.Itoa(i)) {
			hits++
		}
	}
	assert.Less(t, float64(hits)/probes, 0.03)
}

func TestFilter_SaturatesPastCapacity(t *testing.T) {
	f := New(10, 0.01)
	for i := range 11 {
		f.Add(strconv.Itoa(i))
	}
	assert.True(t, f.Saturated())
	assert.Greater(t, f.EstimatedFPRate(), 0.0)
}

func TestFilter_Defaults(t *testing.T) {
	f := New(0, 2)
	assert.Equal(t, uint(DefaultCapacity), f.Capacity())
	assert.InDelta(t, DefaultFPRate, f.FPRate(), 1e-12)
}
