package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"strand/internal/challenge/models"
	"strand/internal/strand/codec"
	strandmodels "strand/internal/strand/models"
	"strand/pkg/platform/sentinel"
)

const (
	challengeKeyPrefix = "challenge:"
	tombstoneKeyPrefix = "challenge_used:"

	// expiredGrace keeps expired challenges around briefly so Consume can
	// report expiry instead of not-found.
	expiredGrace = time.Minute
)

// consumeScript atomically reads and deletes a challenge, leaving a
// tombstone. Returns the encoded challenge, 1 for a replay, or nil.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then
	redis.call('DEL', KEYS[1])
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
	return v
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 1
end
return false
`)

type challengeCBOR struct {
	ID             string                   `cbor:"1,keyasint"`
	CredentialID   string                   `cbor:"2,keyasint"`
	Nonce          []byte                   `cbor:"3,keyasint"`
	IssuedAt       int64                    `cbor:"4,keyasint"` // unix nano
	TTL            int64                    `cbor:"5,keyasint"` // nanoseconds
	RequiredProofs []string                 `cbor:"6,keyasint"`
	Context        strandmodels.AuthContext `cbor:"7,keyasint"`
}

func encodeChallenge(c *models.Challenge) ([]byte, error) {
	w := challengeCBOR{
		ID:           c.ID,
		CredentialID: c.CredentialID,
		Nonce:        c.Nonce,
		IssuedAt:     c.IssuedAt.UnixNano(),
		TTL:          int64(c.TTL),
		Context:      c.Context,
	}
	for _, p := range c.RequiredProofs {
		w.RequiredProofs = append(w.RequiredProofs, string(p))
	}
	return codec.Marshal(w)
}

func decodeChallenge(data []byte) (*models.Challenge, error) {
	var w challengeCBOR
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	c := &models.Challenge{
		ID:           w.ID,
		CredentialID: w.CredentialID,
		Nonce:        w.Nonce,
		IssuedAt:     time.Unix(0, w.IssuedAt).UTC(),
		TTL:          time.Duration(w.TTL),
		Context:      w.Context,
	}
	for _, p := range w.RequiredProofs {
		c.RequiredProofs = append(c.RequiredProofs, models.Proof(p))
	}
	return c, nil
}

// RedisStore persists challenges in Redis. Consumption runs as a Lua script
// so it is atomic across instances.
type RedisStore struct {
	client       redis.UniversalClient
	tombstoneTTL time.Duration
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, tombstoneTTL: defaultTombstoneTTL}
}

func (s *RedisStore) Save(ctx context.Context, c *models.Challenge) error {
	if c == nil {
		return fmt.Errorf("challenge is required: %w", sentinel.ErrInvalidInput)
	}
	data, err := encodeChallenge(c)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, challengeKeyPrefix+c.ID, data, c.TTL+expiredGrace).Result()
	if err != nil {
		return fmt.Errorf("save challenge: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	if !ok {
		return fmt.Errorf("challenge %s: %w", c.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, id string, now time.Time) (*models.Challenge, error) {
	keys := []string{challengeKeyPrefix + id, tombstoneKeyPrefix + id}
	res, err := consumeScript.Run(ctx, s.client, keys, s.tombstoneTTL.Milliseconds()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", errors.Join(err, sentinel.ErrUnavailable))
	}

	switch v := res.(type) {
	case int64:
		return nil, sentinel.ErrAlreadyUsed
	case string:
		c, err := decodeChallenge([]byte(v))
		if err != nil {
			return nil, err
		}
		if c.IsExpired(now) {
			return nil, sentinel.ErrExpired
		}
		return c, nil
	default:
		return nil, fmt.Errorf("consume challenge: unexpected script result %T", res)
	}
}

// PurgeExpired is a no-op; Redis key TTLs expire challenges and tombstones.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
