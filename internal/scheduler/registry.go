package scheduler

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the process's runners by name. Each name maps to exactly
// one Runner for the process lifetime.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
}

// NewRegistry creates a registry containing runners.
func NewRegistry(runners ...*Runner) *Registry {
	reg := &Registry{runners: make(map[string]*Runner, len(runners))}
	for _, r := range runners {
		if err := reg.Register(r); err != nil {
			panic(err)
		}
	}
	return reg
}

// Register adds r. Registering a second runner under the same name fails.
func (g *Registry) Register(r *Runner) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.runners[r.Name()]; exists {
		return fmt.Errorf("scheduler: runner %q already registered", r.Name())
	}
	g.runners[r.Name()] = r
	return nil
}

// Get returns the runner for name or ErrUnknownCycle.
func (g *Registry) Get(name string) (*Runner, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCycle, name)
	}
	return r, nil
}

// Names returns registered names in sorted order.
func (g *Registry) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.runners))
	for n := range g.runners {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every runner ordered by name.
func (g *Registry) All() []*Runner {
	names := g.Names()
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Runner, 0, len(names))
	for _, n := range names {
		out = append(out, g.runners[n])
	}
	return out
}

// StopAll stops every runner and waits for in-flight cycles.
func (g *Registry) StopAll() {
	for _, r := range g.All() {
		r.Stop()
	}
	for _, r := range g.All() {
		r.Wait()
	}
}
