package template

import (
	"context"
	"sort"
	"sync"
)

// Loader receives initializer scripts for one target subsystem.
//
// LoadScript must be idempotent: the bootstrap sequence may re-run after a
// crash that happened before the bootstrap marker was written, so the same
// script can be delivered more than once.
type Loader interface {
	LoadScript(ctx context.Context, name string, content []byte) error
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, name string, content []byte) error

func (f LoaderFunc) LoadScript(ctx context.Context, name string, content []byte) error {
	return f(ctx, name, content)
}

// Registry maps subsystem names to their script loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry creates an empty loader registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

// Register binds a loader to a subsystem name, replacing any previous
// binding.
func (r *Registry) Register(subsystem string, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[subsystem] = loader
}

// Loader returns the loader registered for subsystem.
func (r *Registry) Loader(subsystem string) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loader, ok := r.loaders[subsystem]
	return loader, ok
}

// Subsystems returns the registered subsystem names in sorted order.
func (r *Registry) Subsystems() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
