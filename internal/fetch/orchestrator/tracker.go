package orchestrator

import (
	"fmt"
	"sync"

	"github.com/sportsight/scout/internal/core/domain"
	"github.com/sportsight/scout/internal/fetch/classify"
)

// trackerWindow is how many recent operations the pause decision looks at.
const trackerWindow = 100

// minSampleSize guards the error-rate rule against firing on a handful of
// early failures.
const minSampleSize = 10

type outcome struct {
	ok       bool
	category classify.Category
	critical bool
}

// ErrorTracker watches a sliding window of recent operation outcomes and
// decides when the whole run should pause instead of hammering a host that
// is clearly rejecting us.
type ErrorTracker struct {
	mu     sync.Mutex
	window int
	recent []outcome
}

func NewErrorTracker() *ErrorTracker {
	return &ErrorTracker{window: trackerWindow}
}

func (t *ErrorTracker) push(o outcome) {
	t.recent = append(t.recent, o)
	if len(t.recent) > t.window {
		t.recent = t.recent[1:]
	}
}

// RecordSuccess notes one successful operation.
func (t *ErrorTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.push(outcome{ok: true})
}

// RecordFailure notes one classified failure.
func (t *ErrorTracker) RecordFailure(cls classify.Classification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.push(outcome{
		category: cls.Category,
		critical: cls.Severity == domain.SeverityCritical || cls.Severity == domain.SeverityHigh,
	})
}

// Reset clears the window, typically after a pause.
func (t *ErrorTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = nil
}

// ErrorRate returns the failing fraction of the window.
func (t *ErrorTracker) ErrorRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorRateLocked()
}

func (t *ErrorTracker) errorRateLocked() float64 {
	if len(t.recent) == 0 {
		return 0
	}
	failed := 0
	for _, o := range t.recent {
		if !o.ok {
			failed++
		}
	}
	return float64(failed) / float64(len(t.recent))
}

// Consecutive returns the trailing run of failures in the given category.
// Any success or different category breaks the streak.
func (t *ErrorTracker) Consecutive(cat classify.Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveLocked(cat)
}

func (t *ErrorTracker) consecutiveLocked(cat classify.Category) int {
	n := 0
	for i := len(t.recent) - 1; i >= 0; i-- {
		o := t.recent[i]
		if o.ok || o.category != cat {
			break
		}
		n++
	}
	return n
}

// MostCommon returns the most frequent failure category in the window.
func (t *ErrorTracker) MostCommon() classify.Category {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[classify.Category]int)
	for _, o := range t.recent {
		if !o.ok {
			counts[o.category]++
		}
	}

	var best classify.Category
	bestN := 0
	for cat, n := range counts {
		if n > bestN {
			best, bestN = cat, n
		}
	}
	return best
}

// ShouldPause reports whether the run should back off entirely, and why.
// Triggers: error rate above 80% over a meaningful sample, five or more
// critical failures in the window, or three consecutive anti-bot
// challenges.
func (t *ErrorTracker) ShouldPause() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.recent) >= minSampleSize {
		if rate := t.errorRateLocked(); rate > 0.8 {
			return true, fmt.Sprintf("error rate %.0f%% over last %d operations", rate*100, len(t.recent))
		}
	}

	critical := 0
	for _, o := range t.recent {
		if !o.ok && o.critical {
			critical++
		}
	}
	if critical >= 5 {
		return true, fmt.Sprintf("%d critical errors in window", critical)
	}

	if n := t.consecutiveLocked(classify.CategoryAntiBot); n >= 3 {
		return true, fmt.Sprintf("%d consecutive anti-bot challenges", n)
	}

	return false, ""
}
