package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sportsight/scout/internal/checkpoint"
	"github.com/sportsight/scout/internal/fetch/breaker"
	"github.com/sportsight/scout/internal/fetch/proxy"
	"github.com/sportsight/scout/internal/fetch/ratelimit"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProxySummary is the health view of the proxy pool.
type ProxySummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Available int `json:"available"`
}

// JobHealth is the health view of one scraping job.
type JobHealth struct {
	Status       SystemStatus `json:"status"`
	Progress     float64      `json:"progress_percent"`
	ItemsScraped int          `json:"items_scraped"`
	ItemsFailed  int          `json:"items_failed"`
	ErrorRate    float64      `json:"error_rate"`
}

// Report is the full health report served at /health/detailed.
type Report struct {
	SystemStatus SystemStatus         `json:"system_status"`
	Jobs         map[string]JobHealth `json:"jobs"`
	Breakers     map[string]string    `json:"breakers"`
	LimiterRates map[string]float64   `json:"limiter_rates"`
	Proxies      *ProxySummary        `json:"proxies,omitempty"`
}

// Monitor aggregates health from the fetch components: breakers, limiters,
// proxy pool, job stats, and checkpoint progress.
type Monitor struct {
	jobs     *JobMonitor
	breakers *breaker.Registry
	limiters *ratelimit.Registry
	pool     *proxy.Pool
	store    checkpoint.Store

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a health monitor. pool and store may be nil when the
// deployment runs without proxies or durable checkpoints.
func NewMonitor(
	jobs *JobMonitor,
	breakers *breaker.Registry,
	limiters *ratelimit.Registry,
	pool *proxy.Pool,
	store checkpoint.Store,
) *Monitor {
	return &Monitor{
		jobs:     jobs,
		breakers: breakers,
		limiters: limiters,
		pool:     pool,
		store:    store,
	}
}

// CheckHealth builds the health report. Results are cached briefly so the
// endpoint cannot be used to hammer the checkpoint store.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Jobs:         make(map[string]JobHealth),
		Breakers:     make(map[string]string),
		LimiterRates: make(map[string]float64),
	}

	for name, state := range m.breakers.States() {
		report.Breakers[name] = state.String()
		switch state {
		case breaker.StateOpen:
			report.SystemStatus = StatusCritical
		case breaker.StateHalfOpen:
			if report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	for domain, stats := range m.limiters.Stats() {
		report.LimiterRates[domain] = stats.Rate
	}

	if m.pool != nil && m.pool.Size() > 0 {
		stats := m.pool.Stats()
		report.Proxies = &ProxySummary{
			Total:     stats.Total,
			Healthy:   stats.Healthy,
			Available: stats.Available,
		}
		if stats.Available == 0 {
			report.SystemStatus = StatusCritical
		} else if stats.Healthy < stats.Total {
			if report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	progress := map[string]float64{}
	if m.store != nil {
		if cps, err := m.store.List(ctx); err == nil {
			for _, cp := range cps {
				progress[cp.JobName] = cp.Progress()
			}
		}
	}

	for name, stats := range m.jobs.All() {
		jh := JobHealth{
			Status:       StatusHealthy,
			Progress:     progress[name],
			ItemsScraped: stats.ItemsScraped,
			ItemsFailed:  stats.ItemsFailed,
			ErrorRate:    stats.ErrorRate(),
		}
		switch {
		case jh.ErrorRate > 0.5:
			jh.Status = StatusCritical
			report.SystemStatus = StatusCritical
		case jh.ErrorRate > 0.1:
			jh.Status = StatusDegraded
			if report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
		report.Jobs[name] = jh
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
