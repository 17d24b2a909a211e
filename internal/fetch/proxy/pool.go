package proxy

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Strategy selects the next proxy from the available set.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyRandom      Strategy = "random"
	StrategyPerformance Strategy = "performance"
)

const (
	// DefaultCooldown applies after a regular request failure.
	DefaultCooldown = 60 * time.Second
	// ProbeCooldown applies after a health-probe failure.
	ProbeCooldown = 300 * time.Second
)

// ProbeFunc issues a lightweight request through the proxy against the
// target URL and returns the observed latency.
type ProbeFunc func(ctx context.Context, p *Proxy, target string) (time.Duration, error)

// Config holds proxy pool configuration.
type Config struct {
	URLs                []string
	Strategy            Strategy
	HealthCheckURL      string
	HealthCheckInterval time.Duration
}

// Pool maintains the set of egress routes and the selection policy.
type Pool struct {
	mu       sync.Mutex
	proxies  []*Proxy
	strategy Strategy
	cursor   int

	healthURL      string
	healthInterval time.Duration
	probe          ProbeFunc
}

// NewPool creates a pool from configuration. probe may be nil if health
// checking is not started.
func NewPool(cfg Config, probe ProbeFunc) *Pool {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	interval := cfg.HealthCheckInterval
	if interval == 0 {
		interval = 300 * time.Second
	}

	p := &Pool{
		strategy:       strategy,
		healthURL:      cfg.HealthCheckURL,
		healthInterval: interval,
		probe:          probe,
	}
	p.Add(cfg.URLs...)
	return p
}

// Add appends proxies to the pool, inferring the protocol from each URL.
func (pl *Pool) Add(urls ...string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for _, u := range urls {
		pl.proxies = append(pl.proxies, newProxy(u))
	}
}

// Size returns the total number of proxies in the pool.
func (pl *Pool) Size() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.proxies)
}

// Get returns the next proxy per the rotation strategy, or nil when no
// proxy is available.
func (pl *Pool) Get() *Proxy {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	switch pl.strategy {
	case StrategyRandom:
		available := pl.availableLocked()
		if len(available) == 0 {
			return nil
		}
		return available[rand.Intn(len(available))]

	case StrategyPerformance:
		available := pl.availableLocked()
		if len(available) == 0 {
			return nil
		}
		best := available[0]
		bestScore := score(best)
		for _, p := range available[1:] {
			if s := score(p); s > bestScore {
				best, bestScore = p, s
			}
		}
		return best

	default: // round robin
		for range pl.proxies {
			p := pl.proxies[pl.cursor]
			pl.cursor = (pl.cursor + 1) % len(pl.proxies)
			if p.Available() {
				return p
			}
		}
		return nil
	}
}

// score ranks a proxy by success rate minus average latency in seconds.
func score(p *Proxy) float64 {
	s := p.Snapshot()
	return s.SuccessRate - s.AvgLatency.Seconds()
}

// availableLocked returns the available subset. Caller must hold mu; the
// per-proxy Available check takes each proxy's own lock.
func (pl *Pool) availableLocked() []*Proxy {
	out := make([]*Proxy, 0, len(pl.proxies))
	for _, p := range pl.proxies {
		if p.Available() {
			out = append(out, p)
		}
	}
	return out
}

// RecordSuccess reports a successful request through the proxy.
func (pl *Pool) RecordSuccess(p *Proxy, latency time.Duration) {
	p.recordSuccess(latency)
}

// RecordFailure reports a failed request through the proxy.
func (pl *Pool) RecordFailure(p *Proxy) {
	if p.recordFailure(DefaultCooldown) {
		slog.Warn("proxy marked unhealthy", "proxy", p.URL)
	}
}

// HealthCheck probes every proxy concurrently. A successful probe on a
// previously-unhealthy proxy clears its unhealthy flag; a failed probe
// applies the longer probe cooldown.
func (pl *Pool) HealthCheck(ctx context.Context) {
	if pl.probe == nil || pl.healthURL == "" {
		return
	}

	pl.mu.Lock()
	proxies := make([]*Proxy, len(pl.proxies))
	copy(proxies, pl.proxies)
	pl.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range proxies {
		wg.Add(1)
		go func(p *Proxy) {
			defer wg.Done()

			latency, err := pl.probe(ctx, p, pl.healthURL)
			if err != nil {
				slog.Debug("proxy health probe failed", "proxy", p.URL, "error", err)
				p.recordFailure(ProbeCooldown)
				return
			}

			if !p.Available() {
				p.resetHealth()
				slog.Info("proxy recovered", "proxy", p.URL)
			}
			p.recordSuccess(latency)
		}(p)
	}
	wg.Wait()

	healthy := 0
	for _, p := range proxies {
		if p.Snapshot().Healthy {
			healthy++
		}
	}
	slog.Info("proxy health check completed", "healthy", healthy, "total", len(proxies))
}

// Start runs periodic health checks until ctx is cancelled.
func (pl *Pool) Start(ctx context.Context) {
	if pl.probe == nil || pl.healthURL == "" {
		return
	}

	ticker := time.NewTicker(pl.healthInterval)
	defer ticker.Stop()

	pl.HealthCheck(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.HealthCheck(ctx)
		}
	}
}

// RemoveUnhealthy prunes proxies whose long-run success rate fell below
// minRate. Proxies with fewer than 10 recorded attempts are protected from
// premature eviction.
func (pl *Pool) RemoveUnhealthy(minRate float64) int {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	kept := pl.proxies[:0]
	for _, p := range pl.proxies {
		s := p.Snapshot()
		if s.SuccessRate >= minRate || s.TotalRequests < 10 {
			kept = append(kept, p)
		}
	}

	removed := len(pl.proxies) - len(kept)
	pl.proxies = kept
	if pl.cursor >= len(pl.proxies) {
		pl.cursor = 0
	}
	if removed > 0 {
		slog.Info("unhealthy proxies removed", "count", removed)
	}
	return removed
}

// PoolStats summarizes the pool.
type PoolStats struct {
	Total     int
	Healthy   int
	Available int
	Proxies   []Stats
}

// Stats returns a snapshot of the whole pool.
func (pl *Pool) Stats() PoolStats {
	pl.mu.Lock()
	proxies := make([]*Proxy, len(pl.proxies))
	copy(proxies, pl.proxies)
	pl.mu.Unlock()

	stats := PoolStats{Total: len(proxies)}
	for _, p := range proxies {
		s := p.Snapshot()
		stats.Proxies = append(stats.Proxies, s)
		if s.Healthy {
			stats.Healthy++
		}
		if s.Available {
			stats.Available++
		}
	}
	return stats
}
