// Package proxy manages the pool of egress routes: rotation, health
// tracking, cooldowns, and periodic probing.
package proxy

import (
	"strings"
	"sync"
	"time"
)

// Protocol is the proxy wire protocol, inferred from the URL scheme.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// protocolFromURL infers the protocol from a proxy URL scheme.
func protocolFromURL(rawURL string) Protocol {
	switch {
	case strings.HasPrefix(rawURL, "socks5"):
		return ProtocolSOCKS5
	case strings.HasPrefix(rawURL, "socks4"):
		return ProtocolSOCKS4
	case strings.HasPrefix(rawURL, "https"):
		return ProtocolHTTPS
	default:
		return ProtocolHTTP
	}
}

// Proxy is one egress route with health and performance statistics. Each
// proxy carries its own lock so concurrent users of the same proxy never
// race on its counters.
type Proxy struct {
	URL      string
	Protocol Protocol

	mu                  sync.Mutex
	totalRequests       int
	successfulRequests  int
	failedRequests      int
	consecutiveFailures int
	healthy             bool
	cooldownUntil       time.Time
	avgLatency          time.Duration
	lastUsed            time.Time
	lastSuccess         time.Time
	lastFailure         time.Time
}

// newProxy creates a healthy proxy for the given URL.
func newProxy(rawURL string) *Proxy {
	return &Proxy{
		URL:      rawURL,
		Protocol: protocolFromURL(rawURL),
		healthy:  true,
	}
}

// Available reports whether the proxy is healthy and out of cooldown.
func (p *Proxy) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked(time.Now())
}

func (p *Proxy) availableLocked(now time.Time) bool {
	return p.healthy && !now.Before(p.cooldownUntil)
}

// SuccessRate returns the long-run success ratio.
func (p *Proxy) SuccessRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successRateLocked()
}

func (p *Proxy) successRateLocked() float64 {
	if p.totalRequests == 0 {
		return 0
	}
	return float64(p.successfulRequests) / float64(p.totalRequests)
}

// recordSuccess updates counters and the exponentially-weighted latency
// average, and clears the failure streak.
func (p *Proxy) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.totalRequests++
	p.successfulRequests++
	p.consecutiveFailures = 0
	p.lastUsed = now
	p.lastSuccess = now

	if p.avgLatency == 0 {
		p.avgLatency = latency
	} else {
		p.avgLatency = time.Duration(float64(p.avgLatency)*0.9 + float64(latency)*0.1)
	}
}

// recordFailure updates counters, marks the proxy unhealthy after three
// consecutive failures, and starts a cooldown window.
func (p *Proxy) recordFailure(cooldown time.Duration) (markedUnhealthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.totalRequests++
	p.failedRequests++
	p.consecutiveFailures++
	p.lastUsed = now
	p.lastFailure = now
	p.cooldownUntil = now.Add(cooldown)

	if p.consecutiveFailures >= 3 && p.healthy {
		p.healthy = false
		return true
	}
	return false
}

// resetHealth clears the unhealthy flag, failure streak and cooldown. Used
// by health probes and manual resets.
func (p *Proxy) resetHealth() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = true
	p.consecutiveFailures = 0
	p.cooldownUntil = time.Time{}
}

// Stats is an immutable snapshot of one proxy.
type Stats struct {
	URL                 string
	Protocol            Protocol
	Healthy             bool
	Available           bool
	TotalRequests       int
	ConsecutiveFailures int
	SuccessRate         float64
	AvgLatency          time.Duration
	LastUsed            time.Time
}

// Snapshot returns the proxy's current statistics.
func (p *Proxy) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		URL:                 p.URL,
		Protocol:            p.Protocol,
		Healthy:             p.healthy,
		Available:           p.availableLocked(time.Now()),
		TotalRequests:       p.totalRequests,
		ConsecutiveFailures: p.consecutiveFailures,
		SuccessRate:         p.successRateLocked(),
		AvgLatency:          p.avgLatency,
		LastUsed:            p.lastUsed,
	}
}
