package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Adaptive wraps a token bucket whose rate is adjusted by feedback:
// sustained success speeds up, rate-limit signals slow down hard, repeated
// generic errors slow down gently. The rate stays within [min, max].
type Adaptive struct {
	mu sync.Mutex

	bucket *TokenBucket

	baseRate float64
	current  float64
	minRate  float64
	maxRate  float64

	consecutiveSuccesses int
	consecutiveFailures  int
}

// NewAdaptive creates an adaptive limiter around a token bucket sized for
// ten seconds of burst at the base rate.
func NewAdaptive(baseRate, minRate, maxRate float64) *Adaptive {
	capacity := int(baseRate * 10)
	if capacity < 1 {
		capacity = 1
	}
	return &Adaptive{
		bucket:   NewTokenBucket(baseRate, capacity),
		baseRate: baseRate,
		current:  baseRate,
		minRate:  minRate,
		maxRate:  maxRate,
	}
}

// Acquire admits one operation at the current rate.
func (a *Adaptive) Acquire(ctx context.Context) error {
	return a.bucket.Acquire(ctx, 1)
}

// OnSuccess records a successful request. After ten consecutive successes
// the rate is raised by 10%, up to the maximum.
func (a *Adaptive) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecutiveSuccesses++
	a.consecutiveFailures = 0

	if a.consecutiveSuccesses >= 10 {
		a.setRate(a.current * 1.1)
		a.consecutiveSuccesses = 0
	}
}

// OnRateLimit records a rate-limit signal. The rate drops to the
// server-suggested 1/retryAfter when present, otherwise it is halved.
func (a *Adaptive) OnRateLimit(retryAfter time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecutiveFailures++
	a.consecutiveSuccesses = 0

	if retryAfter > 0 {
		a.setRate(1.0 / retryAfter.Seconds())
	} else {
		a.setRate(a.current * 0.5)
	}
}

// OnError records a generic failure. After three consecutive failures the
// rate is lowered by 20%, down to the minimum.
func (a *Adaptive) OnError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecutiveFailures++
	a.consecutiveSuccesses = 0

	if a.consecutiveFailures >= 3 {
		a.setRate(a.current * 0.8)
		a.consecutiveFailures = 0
	}
}

// Rate returns the current admission rate.
func (a *Adaptive) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// setRate clamps and applies a new rate. Caller must hold mu.
func (a *Adaptive) setRate(rate float64) {
	if rate < a.minRate {
		rate = a.minRate
	}
	if rate > a.maxRate {
		rate = a.maxRate
	}
	a.current = rate
	a.bucket.SetRate(rate)
}
