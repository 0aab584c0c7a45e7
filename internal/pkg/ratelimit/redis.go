package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript runs the whole fixed-window decision server-side so one Take is
// a single round trip with no read-then-write race between instances.
// KEYS[1] bucket key, ARGV[1] limit, ARGV[2] window seconds, ARGV[3] now unix.
// Returns {allowed, remaining, retryAfterSeconds}.
var takeScript = redis.NewScript(`
local started = tonumber(redis.call('HGET', KEYS[1], 'started') or '0')
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
if started == 0 or now >= started + window then
  redis.call('HSET', KEYS[1], 'started', now, 'count', 1)
  redis.call('EXPIRE', KEYS[1], window)
  return {1, limit - 1, 0}
end
if count >= limit then
  local retry = started + window - now
  if retry < 1 then retry = 1 end
  return {0, 0, retry}
end
redis.call('HSET', KEYS[1], 'count', count + 1)
return {1, limit - count - 1, 0}
`)

// RedisLimiter is the durable, cross-instance-consistent limiter. Every call
// carries a bounded timeout so a slow Redis degrades latency instead of
// blocking the request path.
type RedisLimiter struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisLimiter wraps the shared Redis client. A non-positive timeout
// defaults to 2s.
func NewRedisLimiter(client *redis.Client, timeout time.Duration) *RedisLimiter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisLimiter{client: client, timeout: timeout}
}

func (l *RedisLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{Allowed: false, Remaining: 0, RetryAfter: window}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}

	raw, err := takeScript.Run(ctx, l.client, []string{"ratelimit:" + key},
		limit, windowSecs, time.Now().Unix()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis take for %q: %w", key, err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %T for %q", raw, key)
	}
	allowed, aok := vals[0].(int64)
	remaining, rok := vals[1].(int64)
	retry, tok := vals[2].(int64)
	if !aok || !rok || !tok {
		return Result{}, fmt.Errorf("ratelimit: malformed script reply for %q", key)
	}

	res := Result{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration(retry) * time.Second
		if res.RetryAfter < minRetryAfter {
			res.RetryAfter = minRetryAfter
		}
	}
	return res, nil
}
