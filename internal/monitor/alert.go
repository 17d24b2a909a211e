// Package monitor covers the observability surface: alerts, Prometheus
// metrics, per-job statistics, and the health endpoint.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sportsight/scout/internal/core/domain"
)

// Sink receives alerts raised by fetch components. Implementations decide
// delivery (log line, webhook, pager); callers only decide severity.
type Sink interface {
	Send(ctx context.Context, alert *domain.Alert) error
}

// NewAlert builds an alert with a fresh ID and timestamp.
func NewAlert(component string, severity domain.Severity, message string) *domain.Alert {
	return &domain.Alert{
		ID:        uuid.NewString(),
		Component: component,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// SlogSink emits alerts as structured log records, mapping severity to log
// level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to the given logger; nil uses the
// default logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Send(ctx context.Context, alert *domain.Alert) error {
	level := slog.LevelWarn
	switch alert.Severity {
	case domain.SeverityLow:
		level = slog.LevelInfo
	case domain.SeverityCritical:
		level = slog.LevelError
	}

	s.logger.LogAttrs(ctx, level, "alert",
		slog.String("id", alert.ID),
		slog.String("component", alert.Component),
		slog.String("severity", string(alert.Severity)),
		slog.String("message", alert.Message),
	)
	return nil
}
