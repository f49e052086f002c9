package breaker

import "sync"

// Registry is a named-instance cache of circuit breakers. It is owned by the
// component composing the application rather than being a package-level
// singleton, so tests and multiple apps can carry independent registries.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults []Option
}

// NewRegistry creates an empty registry. The given options are applied to
// every breaker the registry creates, before any per-breaker options.
func NewRegistry(defaults ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// GetOrCreate returns the breaker registered under name, creating it on
// first use. Options are only applied on creation; later lookups return the
// existing instance unchanged.
func (r *Registry) GetOrCreate(name string, opts ...Option) *CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock; another caller may have won the race.
	if b, ok := r.breakers[name]; ok {
		return b
	}

	merged := make([]Option, 0, len(r.defaults)+len(opts))
	merged = append(merged, r.defaults...)
	merged = append(merged, opts...)

	b = New(name, merged...)
	r.breakers[name] = b
	return b
}

// Get returns the breaker registered under name, if any.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Remove drops the breaker registered under name. Callers holding a
// reference keep a working instance; it is simply no longer shared.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// Names returns the registered breaker names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}
