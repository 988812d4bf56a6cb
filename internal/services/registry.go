package services

import (
	"context"
	"fmt"
	"sync"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// Registry tracks the context-level services a context owns so they can be
// stopped when the context stops. Services are kept in registration order.
type Registry struct {
	mu       sync.RWMutex
	services []entry
}

type entry struct {
	svc            api.Service
	stopOnShutdown bool
}

// NewRegistry creates a new service registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers svc. Registering the same service twice is a no-op.
// When stopOnShutdown is set, StopAll stops and shuts it down.
func (r *Registry) Add(svc api.Service, stopOnShutdown bool) error {
	if svc == nil {
		return fmt.Errorf("cannot register nil service")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.services {
		if e.svc == svc {
			return nil
		}
	}
	r.services = append(r.services, entry{svc: svc, stopOnShutdown: stopOnShutdown})
	return nil
}

// Remove deregisters svc and reports whether it was registered.
func (r *Registry) Remove(svc api.Service) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.services {
		if e.svc == svc {
			r.services = append(r.services[:i], r.services[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether svc is registered.
func (r *Registry) Contains(svc api.Service) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.services {
		if e.svc == svc {
			return true
		}
	}
	return false
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// All returns the registered services in registration order.
func (r *Registry) All() []api.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.Service, 0, len(r.services))
	for _, e := range r.services {
		out = append(out, e.svc)
	}
	return out
}

// StopAll stops and shuts down the services registered with
// stopOnShutdown in reverse registration order, then clears the registry.
// Failures are logged and swallowed.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	svcs := r.services
	r.services = nil
	r.mu.Unlock()

	for i := len(svcs) - 1; i >= 0; i-- {
		if !svcs[i].stopOnShutdown {
			continue
		}
		if err := StopAndShutdownService(ctx, svcs[i].svc); err != nil {
			logging.WarnErr("Registry", err, "Error stopping service %T", svcs[i].svc)
		}
	}
}
