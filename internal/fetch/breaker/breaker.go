// Package breaker implements the failure-isolation state machine guarding
// each upstream resource.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when a call is rejected because the breaker is open.
// It is distinct from the protected operation's own failures so callers can
// tell "resource unavailable" from "this attempt failed".
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's position in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive successes to close from half-open
	OpenTimeout      time.Duration // time in open before probing
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// Stats holds breaker counters.
type Stats struct {
	TotalRequests        int
	SuccessfulRequests   int
	FailedRequests       int
	RejectedRequests     int
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailure          time.Time
	LastSuccess          time.Time
}

// Breaker guards one resource. All state transitions happen under a single
// mutex so concurrent callers never double-count an outcome, and the lazy
// open→half-open transition is idempotent.
type Breaker struct {
	mu sync.Mutex

	name     string
	cfg      Config
	state    State
	stats    Stats
	openedAt time.Time

	onStateChange func(name string, from, to State)
}

// New creates a breaker for the named resource.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
	}
}

// Name returns the protected resource name.
func (b *Breaker) Name() string { return b.name }

// OnStateChange registers a callback invoked after every state transition.
// The callback runs outside the breaker lock.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Call runs op under breaker protection. When the breaker is open the call
// fails fast with an error wrapping ErrOpen and op is never invoked.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	if transition, ok := b.admit(); !ok {
		return fmt.Errorf("%w: %s", ErrOpen, b.name)
	} else if transition != nil {
		transition()
	}

	err := op(ctx)
	if err != nil {
		if fn := b.onFailure(); fn != nil {
			fn()
		}
		return err
	}

	if fn := b.onSuccess(); fn != nil {
		fn()
	}
	return nil
}

// admit decides whether a call may proceed, performing the lazy
// open→half-open transition. It returns a deferred state-change
// notification to run outside the lock.
func (b *Breaker) admit() (notify func(), ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.stats.TotalRequests++
		return nil, true

	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.OpenTimeout {
			b.stats.RejectedRequests++
			return nil, false
		}
		notify = b.transition(StateHalfOpen)
		b.stats.TotalRequests++
		return notify, true

	case StateHalfOpen:
		b.stats.TotalRequests++
		return nil, true
	}

	return nil, false
}

func (b *Breaker) onSuccess() (notify func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.SuccessfulRequests++
	b.stats.ConsecutiveSuccesses++
	b.stats.ConsecutiveFailures = 0
	b.stats.LastSuccess = time.Now()

	if b.state == StateHalfOpen && b.stats.ConsecutiveSuccesses >= b.cfg.SuccessThreshold {
		b.stats.ConsecutiveFailures = 0
		b.stats.ConsecutiveSuccesses = 0
		return b.transition(StateClosed)
	}
	return nil
}

func (b *Breaker) onFailure() (notify func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.FailedRequests++
	b.stats.ConsecutiveFailures++
	b.stats.ConsecutiveSuccesses = 0
	b.stats.LastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.stats.ConsecutiveFailures >= b.cfg.FailureThreshold {
			b.openedAt = time.Now()
			return b.transition(StateOpen)
		}
	case StateHalfOpen:
		// One failure in half-open reopens and restarts the timeout clock.
		b.openedAt = time.Now()
		return b.transition(StateOpen)
	}
	return nil
}

// transition changes state and returns the notification closure. Caller
// must hold mu.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	if b.onStateChange == nil || from == to {
		return nil
	}
	fn := b.onStateChange
	return func() { fn(b.name, from, to) }
}

// State returns the current state without performing the lazy transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Reset closes the breaker and zeroes all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.transition(StateClosed)
	b.stats = Stats{}
	b.openedAt = time.Time{}
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
}
