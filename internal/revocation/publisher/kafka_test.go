package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strand/internal/platform/kafka/producer"
	"strand/internal/revocation/models"
)

type flakyProducer struct {
	failures int
	calls    int
	last     *producer.Message
}

func (p *flakyProducer) Produce(_ context.Context, msg *producer.Message) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("NOT_LEADER_FOR_PARTITION")
	}
	p.last = msg
	return nil
}

func instantRetries(n uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, n)
	}
}

func checkpoint() *models.Checkpoint {
	cp := &models.Checkpoint{
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Count:     3,
		Signature: make([]byte, 64),
	}
	cp.Digest[0] = 0xab
	return cp
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	prod := &flakyProducer{failures: 2}
	pub := New(prod, WithTopic("checkpoints"), WithBackOff(instantRetries(3)))

	require.NoError(t, pub.Publish(context.Background(), checkpoint()))
	assert.Equal(t, 3, prod.calls)
	require.NotNil(t, prod.last)
	assert.Equal(t, "checkpoints", prod.last.Topic)
	assert.Equal(t, "1700000000", string(prod.last.Key))

	decoded, err := Decode(prod.last.Value)
	require.NoError(t, err)
	assert.Equal(t, checkpoint(), decoded)
}

func TestPublish_GivesUp(t *testing.T) {
	prod := &flakyProducer{failures: 10}
	pub := New(prod, WithBackOff(instantRetries(2)))

	err := pub.Publish(context.Background(), checkpoint())
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Equal(t, 3, prod.calls)
}

func TestPublish_StopsOnCancelledContext(t *testing.T) {
	prod := &flakyProducer{failures: 10}
	pub := New(prod, WithBackOff(instantRetries(100)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, pub.Publish(ctx, checkpoint()))
	assert.LessOrEqual(t, prod.calls, 1)
}

func TestDecode_RejectsShortDigest(t *testing.T) {
	_, err := Decode([]byte{0xa1, 0x03, 0x41, 0x00})
	assert.Error(t, err)
}
