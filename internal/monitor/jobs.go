package monitor

import (
	"sync"
	"time"
)

// JobStats accumulates one scraping job's run statistics.
type JobStats struct {
	Name             string         `json:"name"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at,omitzero"`
	ItemsScraped     int            `json:"items_scraped"`
	ItemsFailed      int            `json:"items_failed"`
	ErrorsByCategory map[string]int `json:"errors_by_category,omitempty"`
}

// Duration returns how long the job has run (or ran, if finished).
func (s *JobStats) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// ErrorRate returns the fraction of processed items that failed.
func (s *JobStats) ErrorRate() float64 {
	total := s.ItemsScraped + s.ItemsFailed
	if total == 0 {
		return 0
	}
	return float64(s.ItemsFailed) / float64(total)
}

// JobMonitor tracks run statistics for every active and finished job.
type JobMonitor struct {
	mu   sync.Mutex
	jobs map[string]*JobStats
}

func NewJobMonitor() *JobMonitor {
	return &JobMonitor{jobs: make(map[string]*JobStats)}
}

// StartJob begins (or restarts) tracking for a job.
func (m *JobMonitor) StartJob(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = &JobStats{
		Name:             name,
		StartedAt:        time.Now(),
		ErrorsByCategory: make(map[string]int),
	}
}

// RecordItem counts one successfully scraped item.
func (m *JobMonitor) RecordItem(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.jobs[name]; s != nil {
		s.ItemsScraped++
	}
}

// RecordFailure counts one failed item under its error category.
func (m *JobMonitor) RecordFailure(name, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.jobs[name]; s != nil {
		s.ItemsFailed++
		s.ErrorsByCategory[category]++
	}
}

// FinishJob stamps the job's end time.
func (m *JobMonitor) FinishJob(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.jobs[name]; s != nil {
		s.FinishedAt = time.Now()
	}
}

// Stats returns a copy of one job's statistics, or nil if unknown.
func (m *JobMonitor) Stats(name string) *JobStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.jobs[name]
	if !ok {
		return nil
	}
	return s.clone()
}

// All returns a copy of every job's statistics.
func (m *JobMonitor) All() map[string]*JobStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*JobStats, len(m.jobs))
	for name, s := range m.jobs {
		out[name] = s.clone()
	}
	return out
}

func (s *JobStats) clone() *JobStats {
	clone := *s
	clone.ErrorsByCategory = make(map[string]int, len(s.ErrorsByCategory))
	for k, v := range s.ErrorsByCategory {
		clone.ErrorsByCategory[k] = v
	}
	return &clone
}
