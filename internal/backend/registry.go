package backend

import (
	"sort"
	"sync"

	"github.com/costplane/costplane/internal/config"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
)

// Factory builds an adapter from configuration.
type Factory func(cfg *config.Configuration, log *logger.Logger) (Adapter, error)

// Registry maps backend names to adapter factories. The process-wide Default
// is populated by explicit Register calls at startup; tests construct their
// own registry and hand it to the orchestrator.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default is the process-wide registry.
var Default = NewRegistry()

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Available lists registered backend names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create constructs the adapter named by cfg.Backend.
func (r *Registry) Create(cfg *config.Configuration, log *logger.Logger) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Backend]
	r.mu.RUnlock()

	if !ok {
		return nil, ierr.NewErrorf("unknown backend %q", cfg.Backend).
			WithHintf("available backends: %v", r.Available()).
			Mark(ierr.ErrBackendNotAvailable)
	}
	return factory(cfg, log)
}
