package providers

import (
	"fmt"
	"sync"
)

// Registry holds the closed set of configured providers and the tier
// assignments. Provider values are shared across jobs; enablement is
// re-checked on every ForTier call so configuration flips take effect
// without a restart.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string            // registration order, used when a tier has no explicit list
	tiers     map[string][]string // tier -> ordered provider names
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		tiers:     make(map[string][]string),
	}
}

// Register adds a provider. Registering the same name twice replaces it.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// SetTier assigns an ordered provider list to a tier
func (r *Registry) SetTier(tier string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[tier] = names
}

// Get returns a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// All returns every registered provider in registration order
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// ForTier returns the ordered set of enabled providers for a tier.
// A tier without an explicit assignment gets every enabled provider.
func (r *Registry) ForTier(tier string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, ok := r.tiers[tier]
	if !ok {
		names = r.order
	}

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		p, ok := r.providers[name]
		if !ok || !p.Enabled() {
			continue
		}
		out = append(out, p)
	}
	return out
}
