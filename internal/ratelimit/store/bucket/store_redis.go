package bucket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"strand/pkg/platform/sentinel"
)

const keyPrefix = "ratelimit:"

// slidingScript trims the window, then adds cost members when they fit.
// Returns {allowed, count, oldest_ms}.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count + cost <= limit then
	for i = 1, cost do
		redis.call('ZADD', key, now, member .. ':' .. i)
	end
	count = count + cost
	allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_ms = now
if oldest[2] then
	oldest_ms = tonumber(oldest[2])
end
return {allowed, count, oldest_ms}
`)

// RedisStore shares sliding windows across instances.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (Result, error) {
	now := s.now()
	res, err := slidingScript.Run(ctx, s.client, []string{keyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, cost, strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, errors.Join(err, sentinel.ErrUnavailable))
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("rate limit %s: unexpected script result %v", key, res)
	}
	out := Result{
		Allowed: res[0] == 1,
		Limit:   limit,
		ResetAt: time.UnixMilli(res[2]).Add(window),
	}
	if out.Allowed {
		out.Remaining = limit - int(res[1])
	}
	return out, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, errors.Join(err, sentinel.ErrUnavailable))
	}
	return nil
}
