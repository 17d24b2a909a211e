package ratelimit

import (
	"context"
	"time"
)

// Config holds the quotas consumed by the multi-level composite.
type Config struct {
	PerSecond float64 `yaml:"per_second"`
	PerMinute int     `yaml:"per_minute"`
	PerHour   int     `yaml:"per_hour"`
	Burst     int     `yaml:"burst"`
}

// DefaultConfig returns conservative source-friendly quotas.
func DefaultConfig() Config {
	return Config{
		PerSecond: 1.0,
		PerMinute: 60,
		PerHour:   1000,
		Burst:     10,
	}
}

// MultiLevel enforces limits at three time scales: a per-second token
// bucket plus per-minute and per-hour sliding windows. An operation is
// admitted only once it clears all three, in ascending granularity.
type MultiLevel struct {
	second *TokenBucket
	minute *SlidingWindow
	hour   *SlidingWindow
}

// NewMultiLevel creates the composite from quota configuration.
func NewMultiLevel(cfg Config) *MultiLevel {
	return &MultiLevel{
		second: NewTokenBucket(cfg.PerSecond, cfg.Burst),
		minute: NewSlidingWindow(time.Minute, cfg.PerMinute),
		hour:   NewSlidingWindow(time.Hour, cfg.PerHour),
	}
}

// Acquire clears the per-second, per-minute, then per-hour quotas.
func (m *MultiLevel) Acquire(ctx context.Context) error {
	if err := m.second.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := m.minute.Acquire(ctx); err != nil {
		return err
	}
	return m.hour.Acquire(ctx)
}
