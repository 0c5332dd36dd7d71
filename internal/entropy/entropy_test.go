package entropy

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "strand/pkg/domain-errors"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestSource_BytesAndHealth(t *testing.T) {
	src := New()

	b, err := src.Bytes(32)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	assert.NoError(t, src.Health())
}

func TestSource_HealthRejectsDegenerateReader(t *testing.T) {
	src := New(WithReader(bytes.NewReader(make([]byte, 1024))))

	err := src.Health()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeEntropyUnavailable))
}

func TestSource_ReadFailureIsEntropyUnavailable(t *testing.T) {
	src := New(WithReader(failingReader{}))

	_, err := src.Bytes(8)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeEntropyUnavailable))
	assert.Error(t, src.Health())
}

func TestStream_IntnInRangeAndIsolated(t *testing.T) {
	src := New()
	s1, err := src.NewStream()
	require.NoError(t, err)
	s2, err := src.NewStream()
	require.NoError(t, err)

	assert.NotEqual(t, s1.Uint64(), s2.Uint64(), "independently keyed streams should diverge")

	counts := make([]int, 7)
	for range 7000 {
		v := s1.Intn(7)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 7)
		counts[v]++
	}
	for i, c := range counts {
		assert.Greater(t, c, 700, "bucket %d is badly underrepresented", i)
	}
}

func TestStream_IntnPanicsOnZero(t *testing.T) {
	s, err := New().NewStream()
	require.NoError(t, err)
	assert.Panics(t, func() { s.Intn(0) })
}
