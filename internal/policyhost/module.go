// Package policyhost is the policy runtime that decision agents delegate to. It runs in
// its own process, exposes named policy modules over the policyrpc service and keeps one
// stateful policy object per delegate.
package policyhost

import (
	"context"
	"sort"
	"sync"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

// BuiltinModule is the module every runtime exposes.
const BuiltinModule = "agentbridge.uct"

// Policy is a stateful move-selection object owned by exactly one delegate.
type Policy interface {
	// InitAI caches per-match state before any SelectAction call.
	InitAI(g wire.Descriptor, playerID int) error
	SelectAction(ctx context.Context, sel policyrpc.Selection) (game.Move, error)
}

// Factory builds a new Policy. It takes no arguments, like a constructor symbol.
type Factory func() (Policy, error)

// Registry maps module names to their factories.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]Factory)}
}

// DefaultRegistry returns a registry holding BuiltinModule with the UCT and Random
// factories.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BuiltinModule, map[string]Factory{
		"UCT":    func() (Policy, error) { return NewUCT(), nil },
		"Random": func() (Policy, error) { return NewRandom(), nil },
	})
	return r
}

// Register adds or replaces a module.
func (r *Registry) Register(module string, factories map[string]Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]Factory, len(factories))
	for name, f := range factories {
		copied[name] = f
	}
	r.modules[module] = copied
}

// Factories lists the factory names of a module in sorted order.
func (r *Registry) Factories(module string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factories, ok := r.modules[module]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, true
}

// Modules lists module names in sorted order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) factory(module, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.modules[module][name]
	return f, ok
}
