package risk

import (
	"sync"

	"tradingengine/internal/clock"
)

// TokenBucket is a continuously-refilling rate limiter. Unlike a limiter that
// resets in fixed windows, tokens trickle back in proportional to elapsed
// time, avoiding the burst-then-stall pattern a hard window produces. Reads
// time through the injected clock, like the rest of the tree, so rate-limit
// behavior is reproducible under a fake clock in tests.
type TokenBucket struct {
	mu       sync.Mutex
	clock    clock.Clock
	tokens   float64 // current available tokens (fractional allowed)
	capacity float64 // maximum burst size
	rate     float64 // tokens refilled per second
	lastMs   int64
}

// NewTokenBucket creates a rate limiter with the given burst capacity and
// refill rate, starting full.
func NewTokenBucket(capacity, ratePerSecond float64, c clock.Clock) *TokenBucket {
	return &TokenBucket{
		clock:    c,
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastMs:   c.NowMs(),
	}
}

// TryTake attempts to consume one token without blocking. Returns false if
// none is available, in which case the caller should reject the request
// rather than wait.
func (tb *TokenBucket) TryTake() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.NowMs()
	elapsed := float64(now-tb.lastMs) / 1000.0
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastMs = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
