package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// takeScript refills and debits a bucket hash in one server-side step.
// Time comes from the Redis server so all clients share one clock.
// Token counts are returned as strings because Lua numbers are truncated to
// integers in replies.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local t = redis.call('TIME')
local now = tonumber(t[1]) + tonumber(t[2]) / 1000000

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now
end

local elapsed = now - ts
if elapsed > 0 then
	tokens = math.min(capacity, tokens + elapsed * rate)
end

local ok = 0
if tokens >= cost then
	tokens = tokens - cost
	ok = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tostring(tokens)}
`)

// RedisBucket is a Bucket stored in Redis, shared by every client using the same key.
type RedisBucket struct {
	redis    *redis.Client
	key      string
	rate     float64
	capacity float64
	logger   zerolog.Logger
}

// NewRedisBucket creates a shared bucket. An empty key uses RedisKeyBucket.
func NewRedisBucket(client *redis.Client, key string, rate, capacity float64, logger zerolog.Logger) *RedisBucket {
	if key == "" {
		key = RedisKeyBucket
	}
	if capacity <= 0 {
		capacity = DefaultCapacity(rate)
	}
	return &RedisBucket{
		redis:    client,
		key:      key,
		rate:     rate,
		capacity: capacity,
		logger:   logger,
	}
}

// Take implements Bucket.
func (b *RedisBucket) Take(ctx context.Context, cost float64) (bool, float64, error) {
	res, err := takeScript.Run(ctx, b.redis, []string{b.key},
		b.capacity, b.rate, cost, int(RedisBucketTTL.Seconds())).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("run bucket script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected bucket script reply: %v", res)
	}

	ok, _ := res[0].(int64)
	raw, _ := res[1].(string)
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("parse bucket tokens %q: %w", raw, err)
	}

	b.logger.Debug().
		Str("key", b.key).
		Bool("ok", ok == 1).
		Float64("tokens", tokens).
		Msg("Shared bucket take")

	return ok == 1, tokens, nil
}

// Available implements Bucket. A zero-cost take refills without debiting.
func (b *RedisBucket) Available(ctx context.Context) (float64, error) {
	_, tokens, err := b.Take(ctx, 0)
	return tokens, err
}

// Reset implements Bucket. The next take recreates a full bucket.
func (b *RedisBucket) Reset(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("reset bucket: %w", err)
	}
	return nil
}
