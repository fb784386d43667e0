package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultKeyPrefix = "ratelimit:"

// incrementScript starts a new window when the stored reset time has passed,
// otherwise bumps the counter. Times are unix milliseconds from the caller's
// clock so every instance agrees on window boundaries.
//
// KEYS[1] entry hash, ARGV[1] now, ARGV[2] window length
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local reset = tonumber(redis.call("HGET", KEYS[1], "reset") or "0")
if reset <= now then
	reset = now + tonumber(ARGV[2])
	redis.call("HSET", KEYS[1], "count", 1, "reset", reset)
	redis.call("PEXPIREAT", KEYS[1], reset)
	return {1, reset}
end
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
return {count, reset}
`)

// KEYS[1] entry hash, ARGV[1] new reset time
var extendScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "reset", ARGV[1])
redis.call("PEXPIREAT", KEYS[1], ARGV[1])
return 1
`)

// RedisStore shares limiter state between server instances. Entries carry a
// PEXPIREAT so Redis evicts them without a sweep.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: defaultKeyPrefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (Entry, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "count", "reset").Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read rate limit entry: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, false, nil
	}

	count, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt rate limit count for %s: %w", key, err)
	}
	resetMs, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt rate limit reset for %s: %w", key, err)
	}

	e := Entry{Count: count, ResetAt: time.UnixMilli(resetMs)}
	if e.Expired(now) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if len(res) != 2 {
		return Entry{}, fmt.Errorf("unexpected increment reply for %s: %v", key, res)
	}
	return Entry{Count: int(res[0]), ResetAt: time.UnixMilli(res[1])}, nil
}

func (s *RedisStore) Extend(ctx context.Context, key string, resetAt time.Time) error {
	if err := extendScript.Run(ctx, s.client, []string{s.key(key)}, resetAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to extend rate limit: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// Sweep is a no-op; Redis expires entries on its own.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
