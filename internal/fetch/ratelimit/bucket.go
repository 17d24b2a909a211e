// Package ratelimit provides the admission-control primitives guarding
// outbound fetches: token bucket, sliding window, a multi-level composite,
// a feedback-driven adaptive limiter, and a per-domain registry.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket admits controlled bursts: capacity accumulates at a fixed
// rate and each admitted operation spends tokens. Safe for concurrent use.
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time
}

// NewTokenBucket creates a full bucket with the given refill rate and
// capacity.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		last:     time.Now(),
	}
}

// Acquire takes n tokens, sleeping until enough accumulate. The wait is
// aborted when ctx is cancelled.
func (tb *TokenBucket) Acquire(ctx context.Context, n int) error {
	need := float64(n)

	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= need {
			tb.tokens -= need
			tb.mu.Unlock()
			return nil
		}
		wait := time.Duration((need - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Re-check under lock; another caller may have drained the
			// bucket while we slept.
		}
	}
}

// SetRate changes the refill rate, settling accrued tokens first.
func (tb *TokenBucket) SetRate(rate float64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	tb.rate = rate
}

// Rate returns the current refill rate.
func (tb *TokenBucket) Rate() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

// Available returns the current token count.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// refill credits tokens for elapsed time. Caller must hold mu.
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.last).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.last = now
}

// Limiter is the common admission interface.
type Limiter interface {
	Acquire(ctx context.Context) error
}
