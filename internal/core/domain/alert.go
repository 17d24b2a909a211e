package domain

import "time"

// Severity grades how urgent a failure or alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a structured event reported to an external monitoring
// collaborator: alert-flagged classifications, breaker openings, and jobs
// whose error rate crosses the pause threshold.
type Alert struct {
	ID        string    `json:"id"`
	Component string    `json:"component"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
