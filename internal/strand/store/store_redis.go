package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"strand/internal/strand/codec"
	"strand/internal/strand/models"
	"strand/pkg/platform/sentinel"
)

const (
	credentialKeyPrefix = "strand:"

	// retention keeps a credential readable for a while after expiry so
	// verification can report expiry instead of not-found.
	retention = 24 * time.Hour
)

// RedisStore persists credentials in their canonical CBOR encoding.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Put(ctx context.Context, c *models.Credential) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("credential with id is required: %w", sentinel.ErrInvalidInput)
	}
	data, err := codec.EncodeCredential(c)
	if err != nil {
		return err
	}
	ttl := c.ExpiresAt.Sub(s.now()) + retention
	if ttl <= 0 {
		ttl = retention
	}
	ok, err := s.client.SetNX(ctx, credentialKeyPrefix+c.ID, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("put credential: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	if !ok {
		return fmt.Errorf("credential %s: %w", c.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Credential, error) {
	data, err := s.client.Get(ctx, credentialKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	return codec.DecodeCredential(data)
}
