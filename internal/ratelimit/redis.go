package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindowScript increments the counter of the current window and sets its
// expiry on first use
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is a fixed one-minute window counter shared through Redis, so
// every server instance enforces the same limit
type RedisLimiter struct {
	client            redis.Scripter
	prefix            string
	requestsPerMinute int
	now               func() time.Time
}

// NewRedisLimiter creates a limiter storing its counters under prefix
func NewRedisLimiter(client redis.Scripter, prefix string, requestsPerMinute int) *RedisLimiter {
	return &RedisLimiter{
		client:            client,
		prefix:            prefix,
		requestsPerMinute: requestsPerMinute,
		now:               time.Now,
	}
}

// Allow counts one request for key in the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	window := now.Unix() / 60
	windowKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, window)

	current, err := fixedWindowScript.Run(ctx, l.client, []string{windowKey}, 60).Int()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	remaining := l.requestsPerMinute - current
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   current <= l.requestsPerMinute,
		Limit:     l.requestsPerMinute,
		Remaining: remaining,
		Reset:     time.Unix((window+1)*60, 0),
	}, nil
}
