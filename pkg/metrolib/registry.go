package metrolib

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a fresh operation for one iteration of a line.
type Constructor func(identifier string, pause Pause, args Args) (Operation, error)

// Registry maps operation type names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	r.ctors[name] = ctor
	r.mu.Unlock()
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	_, ok := r.ctors[name]
	r.mu.RUnlock()
	return ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Create constructs a new operation of type name.
func (r *Registry) Create(name, identifier string, pause Pause, args Args) (Operation, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	op, err := ctor(identifier, pause, args)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return op, nil
}
