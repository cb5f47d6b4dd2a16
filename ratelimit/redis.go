package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const redisLimiterPrefix = "paygate:ratelimit:"

// redisFixedWindowScript runs one fixed-window hit atomically.
// KEYS[1] = client key
// ARGV[1] = window (milliseconds)
// ARGV[2] = max requests per window
// Returns {allowed, count, ttl_ms}.
var redisFixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local max = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", key))
if not count then
    redis.call("SET", key, 1, "PX", window)
    return {1, 1, window}
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
    redis.call("PEXPIRE", key, window)
    ttl = window
end

if count >= max then
    return {0, count, ttl}
end

count = redis.call("INCR", key)
return {1, count, ttl}
`)

// RedisStore shares rate-limit windows between gate replicas. The window
// expiry is the key TTL, so no sweeper is needed.
type RedisStore struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisStore creates a store backed by a new Redis client.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb, owned: true}
}

// NewRedisStoreFromClient wraps an existing client. Close does not close it.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, clientID string, window time.Duration, max int, now time.Time) (Entry, bool, error) {
	key := redisLimiterPrefix + clientID

	res, err := redisFixedWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds(), max).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis limiter error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 3 {
		return Entry{}, false, fmt.Errorf("invalid response from lua script")
	}

	allowed, _ := results[0].(int64)
	count, _ := results[1].(int64)
	ttl, _ := results[2].(int64)

	return Entry{
		Count:         int(count),
		WindowResetAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}, allowed == 1, nil
}

func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
