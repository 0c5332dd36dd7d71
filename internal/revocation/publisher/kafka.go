// Package publisher ships signed revocation checkpoints to Kafka so other
// deployments can sync their revocation view.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"strand/internal/platform/kafka/producer"
	"strand/internal/revocation/models"
	"strand/internal/strand/codec"
)

const DefaultTopic = "strand.revocation.checkpoints"

// Producer is the subset of the Kafka producer used here.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// wireCheckpoint is the record value: the signed fields plus the signature.
type wireCheckpoint struct {
	Timestamp int64  `cbor:"1,keyasint"`
	Count     uint64 `cbor:"2,keyasint"`
	Digest    []byte `cbor:"3,keyasint"`
	Signature []byte `cbor:"4,keyasint"`
}

// Encode returns the record value for cp.
func Encode(cp *models.Checkpoint) ([]byte, error) {
	f := cp.Fields()
	return codec.Marshal(wireCheckpoint{
		Timestamp: f.Timestamp,
		Count:     f.Count,
		Digest:    f.Digest,
		Signature: cp.Signature,
	})
}

// Decode parses a record value produced by Encode.
func Decode(data []byte) (*models.Checkpoint, error) {
	var w wireCheckpoint
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	cp := &models.Checkpoint{
		Timestamp: time.Unix(w.Timestamp, 0).UTC(),
		Count:     w.Count,
		Signature: w.Signature,
	}
	if len(w.Digest) != len(cp.Digest) {
		return nil, fmt.Errorf("decode checkpoint: digest is %d bytes", len(w.Digest))
	}
	copy(cp.Digest[:], w.Digest)
	return cp, nil
}

type Option func(*KafkaPublisher)

func WithTopic(topic string) Option {
	return func(p *KafkaPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithBackOff sets the retry policy factory. Each Publish call gets a
// fresh policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *KafkaPublisher) {
		if newBackOff != nil {
			p.newBackOff = newBackOff
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// KafkaPublisher publishes checkpoints, retrying with exponential backoff.
type KafkaPublisher struct {
	producer   Producer
	topic      string
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

func New(p Producer, opts ...Option) *KafkaPublisher {
	pub := &KafkaPublisher{
		producer: p,
		topic:    DefaultTopic,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, 5)
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(pub)
	}
	return pub
}

// Publish sends cp keyed by its timestamp.
func (p *KafkaPublisher) Publish(ctx context.Context, cp *models.Checkpoint) error {
	value, err := Encode(cp)
	if err != nil {
		return err
	}
	msg := &producer.Message{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(cp.Timestamp.Unix(), 10)),
		Value: value,
		Headers: map[string]string{
			"content-type": "application/cbor",
			"digest":       cp.Digest.Hex(),
		},
	}

	attempt := 0
	op := func() error {
		attempt++
		err := p.producer.Produce(ctx, msg)
		if err != nil {
			p.logger.WarnContext(ctx, "checkpoint publish attempt failed",
				"attempt", attempt,
				"topic", p.topic,
				"error", err,
			)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("publish checkpoint after %d attempts: %w", attempt, err)
	}
	return nil
}
