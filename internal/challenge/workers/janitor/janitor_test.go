package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strand/internal/challenge/models"
	"strand/internal/challenge/store"
	"strand/internal/platform/metrics"
)

type failingStore struct{}

func (failingStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("boom")
}

func TestJanitor_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	challenges := store.NewInMemory()

	for _, id := range []string{"chal_a", "chal_b"} {
		require.NoError(t, challenges.Save(ctx, &models.Challenge{ID: id, IssuedAt: now.Add(-time.Hour), TTL: time.Minute}))
	}
	require.NoError(t, challenges.Save(ctx, &models.Challenge{ID: "chal_live", IssuedAt: now, TTL: time.Minute}))

	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	j, err := New(challenges, WithMetrics(m), WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Purged)
	assert.Equal(t, 1, challenges.Len())
	assert.InDelta(t, 2, testutil.ToFloat64(m.ChallengesPurged), 0)
}

func TestJanitor_RunOnceWrapsStoreError(t *testing.T) {
	j, err := New(failingStore{})
	require.NoError(t, err)

	_, err = j.RunOnce(context.Background())
	assert.ErrorContains(t, err, "purge expired challenges")
}

func TestJanitor_StartStopsOnCancel(t *testing.T) {
	j, err := New(store.NewInMemory(), WithInterval(time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, j.Start(ctx), context.DeadlineExceeded)
}

func TestJanitor_RequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
