package inference

import (
	"fmt"
	"strings"
	"sync"

	"misalud-backend/internal/shared/telemetry"
)

// SupportedBackends lists the backend names the registry can build.
var SupportedBackends = []string{"remote", "local"}

// Factory builds a backend instance. Construction must be cheap and
// side-effect-light until first use.
type Factory func() (Backend, error)

// Registry is a lazy, memoized backend factory. Instances are built at
// most once per name for the registry's lifetime; Reset discards them,
// which keeps tests isolated.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Backend
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Backend),
	}
}

// Register associates a backend name with its factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Resolve returns the memoized backend for name, building it on first use.
func (r *Registry) Resolve(name string) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if backend, ok := r.instances[name]; ok {
		return backend, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown inference backend %q", name)
	}

	telemetry.Info("inference.backend_init", map[string]any{"backend": name})
	backend, err := factory()
	if err != nil {
		return nil, fmt.Errorf("init backend %s: %w", name, err)
	}
	r.instances[name] = backend
	return backend, nil
}

// Reset discards memoized instances; factories stay registered.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]Backend)
}

// ResolveOrder maps a configured backend name to the ordered attempt
// list. "auto", empty, and invalid names resolve to the full order.
func ResolveOrder(backendName string) []string {
	configured := strings.ToLower(strings.TrimSpace(backendName))
	if configured == "" || configured == "auto" {
		return []string{"remote", "local"}
	}
	for _, name := range SupportedBackends {
		if configured == name {
			return []string{configured}
		}
	}
	telemetry.Warn("inference.invalid_backend", map[string]any{"backend": backendName})
	return []string{"remote", "local"}
}
