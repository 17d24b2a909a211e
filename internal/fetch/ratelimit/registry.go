package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DomainStats is a snapshot of one domain's limiter state.
type DomainStats struct {
	Rate                 float64
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// Registry maintains one adaptive limiter per domain, lazily created on
// first use. It is an injected object with its own locking, never a
// package-level global.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Adaptive

	baseRate float64
	minRate  float64
	maxRate  float64
}

// NewRegistry creates a per-domain limiter registry. New domains start at
// baseRate and adapt within [minRate, maxRate].
func NewRegistry(baseRate, minRate, maxRate float64) *Registry {
	return &Registry{
		limiters: make(map[string]*Adaptive),
		baseRate: baseRate,
		minRate:  minRate,
		maxRate:  maxRate,
	}
}

// Get returns the limiter for a domain, creating it on first use.
func (r *Registry) Get(domain string) *Adaptive {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[domain]
	if !ok {
		lim = NewAdaptive(r.baseRate, r.minRate, r.maxRate)
		r.limiters[domain] = lim
	}
	return lim
}

// Configure pre-creates a domain's limiter with its own base rate,
// overriding the registry default.
func (r *Registry) Configure(domain string, baseRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[domain] = NewAdaptive(baseRate, r.minRate, r.maxRate)
}

// Acquire admits one operation against the domain's limiter.
func (r *Registry) Acquire(ctx context.Context, domain string) error {
	return r.Get(domain).Acquire(ctx)
}

// OnSuccess reports a successful request for the domain.
func (r *Registry) OnSuccess(domain string) {
	r.Get(domain).OnSuccess()
}

// OnRateLimit reports a rate-limit signal for the domain.
func (r *Registry) OnRateLimit(domain string, retryAfter time.Duration) {
	r.Get(domain).OnRateLimit(retryAfter)
}

// OnError reports a generic failure for the domain.
func (r *Registry) OnError(domain string) {
	r.Get(domain).OnError()
}

// Stats returns a snapshot of every known domain's limiter.
func (r *Registry) Stats() map[string]DomainStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]DomainStats, len(r.limiters))
	for domain, lim := range r.limiters {
		lim.mu.Lock()
		out[domain] = DomainStats{
			Rate:                 lim.current,
			ConsecutiveSuccesses: lim.consecutiveSuccesses,
			ConsecutiveFailures:  lim.consecutiveFailures,
		}
		lim.mu.Unlock()
	}
	return out
}
