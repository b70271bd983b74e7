package breaker

import "sync"

// Registry holds one breaker per endpoint, all sharing a configuration.
// Safe for concurrent use.
type Registry struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry whose breakers use cfg and opts.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for an endpoint, creating it on first use.
func (r *Registry) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[endpoint]
	if !ok {
		b = New(endpoint, r.cfg, r.opts...)
		r.breakers[endpoint] = b
	}
	return b
}

// Endpoints returns the endpoints with a breaker.
func (r *Registry) Endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.breakers))
	for ep := range r.breakers {
		out = append(out, ep)
	}
	return out
}

// AggregateStats sums the statistics of all breakers.
func (r *Registry) AggregateStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total Stats
	for _, b := range r.breakers {
		s := b.Stats()
		total.Calls += s.Calls
		total.Successes += s.Successes
		total.Failures += s.Failures
		total.Rejections += s.Rejections
		total.StateChanges += s.StateChanges
		total.TimeOpen += s.TimeOpen
	}
	return total
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
