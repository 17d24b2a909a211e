package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow admits at most max operations in any trailing window by
// tracking admission timestamps. Safe for concurrent use.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	times  []time.Time
}

// NewSlidingWindow creates a limiter allowing max operations per window.
func NewSlidingWindow(window time.Duration, max int) *SlidingWindow {
	return &SlidingWindow{
		window: window,
		max:    max,
		times:  make([]time.Time, 0, max),
	}
}

// Acquire admits one operation, sleeping until the oldest admission exits
// the window when at capacity. The wait is aborted when ctx is cancelled.
func (sw *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		sw.mu.Lock()
		now := time.Now()
		sw.prune(now)

		if len(sw.times) < sw.max {
			sw.times = append(sw.times, now)
			sw.mu.Unlock()
			return nil
		}

		wait := sw.times[0].Add(sw.window).Sub(now)
		sw.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// Loop: a concurrent caller may have taken the freed slot.
		}
	}
}

// InWindow returns the number of admissions currently inside the window.
func (sw *SlidingWindow) InWindow() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(time.Now())
	return len(sw.times)
}

// prune drops timestamps older than the window. Caller must hold mu.
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.times) && !sw.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.times = sw.times[i:]
	}
}
