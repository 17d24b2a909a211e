// Package backoff implements retry strategies and the retry loop that
// drives them.
package backoff

import (
	"math/rand"
	"time"

	"github.com/sportsight/scout/internal/fetch/classify"
)

// Context tracks the progress of one logical operation's attempt sequence.
type Context struct {
	Attempt   int
	Elapsed   time.Duration
	LastErr   error
	LastClass *classify.Classification
}

// Strategy decides whether to retry and how long to wait.
type Strategy interface {
	ShouldRetry(ctx *Context) bool
	WaitTime(ctx *Context) time.Duration
}

// Exponential backs off as base * multiplier^(attempt-1), capped at Max,
// optionally jittered by ±25%.
type Exponential struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      bool
}

// NewExponential returns an exponential strategy with the usual defaults.
func NewExponential(maxAttempts int) *Exponential {
	return &Exponential{
		MaxAttempts: maxAttempts,
		Base:        1 * time.Second,
		Max:         60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// ShouldRetry reports whether another attempt is allowed.
func (e *Exponential) ShouldRetry(ctx *Context) bool {
	return ctx.Attempt < e.MaxAttempts
}

// WaitTime computes the delay before the next attempt.
func (e *Exponential) WaitTime(ctx *Context) time.Duration {
	delay := float64(e.Base)
	for i := 1; i < ctx.Attempt; i++ {
		delay *= e.Multiplier
	}
	if delay > float64(e.Max) {
		delay = float64(e.Max)
	}
	if e.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.25
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Fibonacci backs off following the Fibonacci sequence scaled by Base,
// capped at Max.
type Fibonacci struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// NewFibonacci returns a Fibonacci strategy with the usual defaults.
func NewFibonacci(maxAttempts int) *Fibonacci {
	return &Fibonacci{
		MaxAttempts: maxAttempts,
		Base:        1 * time.Second,
		Max:         60 * time.Second,
	}
}

// ShouldRetry reports whether another attempt is allowed.
func (f *Fibonacci) ShouldRetry(ctx *Context) bool {
	return ctx.Attempt < f.MaxAttempts
}

// WaitTime computes the delay before the next attempt.
func (f *Fibonacci) WaitTime(ctx *Context) time.Duration {
	delay := time.Duration(fib(ctx.Attempt)) * f.Base
	if delay > f.Max {
		delay = f.Max
	}
	return delay
}

func fib(n int) int {
	if n <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Adaptive consults the error classification: non-retryable failures stop
// immediately except rate limits, which are always retried; an explicit
// Retry-After is honored verbatim; everything else falls back to
// exponential backoff with jitter.
type Adaptive struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// NewAdaptive returns an adaptive strategy with the usual defaults.
func NewAdaptive(maxAttempts int) *Adaptive {
	return &Adaptive{
		MaxAttempts: maxAttempts,
		Base:        1 * time.Second,
		Max:         120 * time.Second,
	}
}

// ShouldRetry consults the last classification before allowing a retry.
func (a *Adaptive) ShouldRetry(ctx *Context) bool {
	if ctx.Attempt >= a.MaxAttempts {
		return false
	}
	if ctx.LastClass == nil {
		return true
	}
	if ctx.LastClass.Category == classify.CategoryRateLimit {
		return true
	}
	return ctx.LastClass.Retryable
}

// WaitTime honors an explicit retry-after, applies the category-specific
// growth factor, and otherwise falls back to jittered exponential backoff.
func (a *Adaptive) WaitTime(ctx *Context) time.Duration {
	if ctx.LastClass != nil {
		if ctx.LastClass.RetryAfter > 0 {
			return ctx.LastClass.RetryAfter
		}
		switch ctx.LastClass.Category {
		case classify.CategoryRateLimit, classify.CategoryAntiBot, classify.CategoryServerError:
			delay := classify.RetryDelay(*ctx.LastClass, ctx.Attempt, a.Base)
			if delay > a.Max {
				delay = a.Max
			}
			return delay
		}
	}

	delay := float64(a.Base)
	for i := 1; i < ctx.Attempt; i++ {
		delay *= 2
	}
	delay += rand.Float64() * delay * 0.3
	if delay > float64(a.Max) {
		delay = float64(a.Max)
	}
	return time.Duration(delay)
}
