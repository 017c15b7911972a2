package candidate

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named generators a deployment knows how to turn into
// trials.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

// NewRegistry creates an empty generator registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator under its name. Registering a duplicate name is
// an error.
func (r *Registry) Register(gen Generator) error {
	if gen.Name == "" {
		return fmt.Errorf("generator name is required")
	}
	if gen.New == nil {
		return fmt.Errorf("generator %q has no constructor", gen.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[gen.Name]; ok {
		return fmt.Errorf("generator %q is already registered", gen.Name)
	}
	r.generators[gen.Name] = gen
	return nil
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gen, ok := r.generators[name]
	if !ok {
		return Generator{}, fmt.Errorf("generator %q is not registered", name)
	}
	return gen, nil
}

// Names returns all registered generator names, sorted for a stable API
// response.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered generator in name order.
func (r *Registry) All() []Generator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)

	gens := make([]Generator, 0, len(names))
	for _, name := range names {
		gens = append(gens, r.generators[name])
	}
	return gens
}
