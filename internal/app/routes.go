package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/engine"
	"switchyard/internal/exchange"
	"switchyard/internal/pool"
	"switchyard/internal/route"
	"switchyard/pkg/logging"
)

// RouteManager keeps the routes of a context in line with the declared
// route list.
type RouteManager struct {
	c *engine.Context

	mu       sync.Mutex
	declared map[string]config.RouteConfig
}

// NewRouteManager returns a manager for the routes of c.
func NewRouteManager(c *engine.Context) *RouteManager {
	return &RouteManager{c: c, declared: make(map[string]config.RouteConfig)}
}

// Declared returns the route declarations currently applied, in no
// particular order.
func (m *RouteManager) Declared() []config.RouteConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]config.RouteConfig, 0, len(m.declared))
	for _, rc := range m.declared {
		out = append(out, rc)
	}
	return out
}

// Add registers routes with the context. Routes are started by the context
// if it is already running.
func (m *RouteManager) Add(ctx context.Context, routes ...config.RouteConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, rc := range routes {
		if err := m.addLocked(ctx, rc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply brings the context in line with diff: removed routes are stopped
// and removed, changed routes are replaced and added routes registered.
// Every route is attempted; the failures are joined.
func (m *RouteManager) Apply(ctx context.Context, diff config.RouteDiff) error {
	if diff.IsEmpty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	logging.Info("Routes", "Applying route changes: %d added, %d removed, %d changed",
		len(diff.Added), len(diff.Removed), len(diff.Changed))

	var errs []error
	for _, rc := range diff.Removed {
		if err := m.removeLocked(ctx, rc.ID); err != nil {
			errs = append(errs, err)
		}
	}
	for _, rc := range diff.Changed {
		if err := m.removeLocked(ctx, rc.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.addLocked(ctx, rc); err != nil {
			errs = append(errs, err)
		}
	}
	for _, rc := range diff.Added {
		if err := m.addLocked(ctx, rc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *RouteManager) addLocked(ctx context.Context, rc config.RouteConfig) error {
	def, err := m.definition(ctx, rc)
	if err != nil {
		return err
	}
	// A route that fails to start is still registered; keep track of it so
	// a later reload can replace it.
	if _, err := m.c.AddRoute(ctx, def); err != nil {
		if _, ok := m.c.Route(rc.ID); ok {
			m.declared[rc.ID] = rc
		}
		return fmt.Errorf("adding route %s: %w", rc.ID, err)
	}
	m.declared[rc.ID] = rc
	return nil
}

func (m *RouteManager) removeLocked(ctx context.Context, id string) error {
	delete(m.declared, id)
	if _, ok := m.c.Route(id); !ok {
		return nil
	}
	if err := m.c.RouteController().StopRoute(ctx, id); err != nil {
		return fmt.Errorf("stopping route %s: %w", id, err)
	}
	removed, err := m.c.RemoveRoute(ctx, id)
	if err != nil {
		return fmt.Errorf("removing route %s: %w", id, err)
	}
	if !removed {
		return fmt.Errorf("route %s could not be removed", id)
	}
	return nil
}

// definition turns a declaration into a route that forwards each exchange
// to the To endpoints in order.
func (m *RouteManager) definition(ctx context.Context, rc config.RouteConfig) (route.Definition, error) {
	steps := make([]*forwardStep, 0, len(rc.To))
	for i, uri := range rc.To {
		ep, err := m.c.Endpoint(ctx, uri)
		if err != nil {
			return route.Definition{}, fmt.Errorf("route %s: resolving %s: %w", rc.ID, uri, err)
		}
		steps = append(steps, &forwardStep{
			id:       "to" + strconv.Itoa(i+1),
			endpoint: ep,
			pool:     m.c.Producers(),
		})
	}
	return route.Definition{
		ID:           rc.ID,
		From:         rc.From,
		Description:  rc.Description,
		StartupOrder: rc.StartupOrder,
		AutoStartup:  rc.AutoStartup,
		Processor:    &forwarder{routeID: rc.ID, steps: steps},
	}, nil
}

// forwarder sends an exchange to each of its steps in turn and stops at
// the first failure.
type forwarder struct {
	routeID string
	steps   []*forwardStep
}

var (
	_ api.Processor           = (*forwarder)(nil)
	_ api.ServiceWithChildren = (*forwarder)(nil)
)

func (f *forwarder) Start(context.Context) error { return nil }
func (f *forwarder) Stop(context.Context) error  { return nil }

func (f *forwarder) ChildServices() []api.Service {
	out := make([]api.Service, len(f.steps))
	for i, s := range f.steps {
		out[i] = s
	}
	return out
}

func (f *forwarder) Process(ctx context.Context, ex *exchange.Exchange) error {
	for _, s := range f.steps {
		ex.AddHistory(f.routeID, s.id)
		if err := s.send(ctx, ex); err != nil {
			return err
		}
	}
	return nil
}

// forwardStep sends to one endpoint with a producer borrowed from the
// context's producer pool. It reports the endpoint so the context knows
// the route uses it.
type forwardStep struct {
	id       string
	endpoint api.Endpoint
	pool     *pool.ServicePool[api.Producer]
}

func (s *forwardStep) Endpoint() api.Endpoint       { return s.endpoint }
func (s *forwardStep) Start(context.Context) error { return nil }
func (s *forwardStep) Stop(context.Context) error  { return nil }

func (s *forwardStep) send(ctx context.Context, ex *exchange.Exchange) error {
	p, err := s.pool.Acquire(ctx, s.endpoint)
	if err != nil {
		return fmt.Errorf("acquiring producer for %s: %w", s.endpoint.URI(), err)
	}
	defer s.pool.Release(ctx, s.endpoint, p)
	return p.Process(ctx, ex)
}
