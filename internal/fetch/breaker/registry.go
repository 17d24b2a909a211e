package breaker

import "sync"

// Registry holds one breaker per protected resource, lazily created. It is
// an injected object with its own locking, never a package-level global.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	defaults      Config
	onStateChange func(name string, from, to State)
}

// NewRegistry creates a registry whose breakers use the given defaults.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// OnStateChange registers a callback applied to every breaker, present and
// future.
func (r *Registry) OnStateChange(fn func(name string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
	for _, b := range r.breakers {
		b.OnStateChange(fn)
	}
}

// Get returns the breaker for a resource, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.defaults)
		if r.onStateChange != nil {
			b.OnStateChange(r.onStateChange)
		}
		r.breakers[name] = b
	}
	return b
}

// AllStats returns a snapshot of every breaker's counters and state.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Stats()
	}
	return out
}

// States returns the current state of every breaker.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// ResetAll closes every breaker and zeroes its counters.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.Reset()
	}
}
