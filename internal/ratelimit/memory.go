package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// maxBuckets bounds the number of tracked keys before idle ones are pruned
const maxBuckets = 10000

// MemoryLimiter is a per-key token bucket kept in process memory
type MemoryLimiter struct {
	requestsPerMinute int
	tokensPerSec      float64
	maxTokens         float64
	now               func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewMemoryLimiter creates a limiter refilling requestsPerMinute tokens a
// minute into buckets holding at most burstSize
func NewMemoryLimiter(requestsPerMinute, burstSize int) *MemoryLimiter {
	if burstSize < 1 {
		burstSize = 1
	}
	return &MemoryLimiter{
		requestsPerMinute: requestsPerMinute,
		tokensPerSec:      float64(requestsPerMinute) / 60.0,
		maxTokens:         float64(burstSize),
		now:               time.Now,
		buckets:           make(map[string]*tokenBucket),
	}
}

// Allow takes one token from key's bucket
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	bucket, exists := l.buckets[key]
	if !exists {
		if len(l.buckets) >= maxBuckets {
			l.prune(now)
		}
		bucket = &tokenBucket{tokens: l.maxTokens, lastRefill: now}
		l.buckets[key] = bucket
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.lastRefill = now
	bucket.tokens = math.Min(bucket.tokens+elapsed*l.tokensPerSec, l.maxTokens)

	decision := Decision{Limit: l.requestsPerMinute}
	if bucket.tokens >= 1.0 {
		bucket.tokens -= 1.0
		decision.Allowed = true
	}
	decision.Remaining = int(bucket.tokens)
	decision.Reset = now.Add(l.untilNextToken(bucket.tokens))

	return decision, nil
}

func (l *MemoryLimiter) untilNextToken(tokens float64) time.Duration {
	if tokens >= 1.0 || l.tokensPerSec <= 0 {
		return 0
	}
	return time.Duration((1.0 - tokens) / l.tokensPerSec * float64(time.Second))
}

// prune drops buckets that have refilled completely
func (l *MemoryLimiter) prune(now time.Time) {
	for key, bucket := range l.buckets {
		refilled := bucket.tokens + now.Sub(bucket.lastRefill).Seconds()*l.tokensPerSec
		if refilled >= l.maxTokens {
			delete(l.buckets, key)
		}
	}
}
