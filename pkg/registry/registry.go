package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/baton/pkg/domain"
)

// Registry manages the work functions stages can be bound to.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	works map[string]domain.WorkFunc
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		works: make(map[string]domain.WorkFunc),
	}
}

// Register adds a work function to the registry.
// If a function with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn domain.WorkFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.works[name] = fn
}

// Lookup returns the work function registered under name.
func (r *Registry) Lookup(name string) (domain.WorkFunc, error) {
	r.mu.RLock()
	fn, ok := r.works[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no work function registered as %q", domain.ErrConfiguration, name)
	}
	return fn, nil
}

// Names returns the sorted registered names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.works))
	for n := range r.works {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
