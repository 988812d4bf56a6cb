package engine

import (
	"context"
	"errors"
	"fmt"

	"switchyard/internal/api"
	"switchyard/internal/dependency"
	"switchyard/internal/events"
	"switchyard/internal/route"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
	"switchyard/pkg/sequence"
)

// AddRoute adds a single route; see AddRoutes.
func (c *Context) AddRoute(ctx context.Context, def route.Definition) (*route.Route, error) {
	routes, err := c.AddRoutes(ctx, def)
	if len(routes) == 0 {
		return nil, err
	}
	return routes[0], err
}

// AddRoutes registers the routes of defs. Routes without an id get a
// generated "route<n>" id. When the context is already started the new
// routes are started as one batch, honouring their auto-startup flag.
func (c *Context) AddRoutes(ctx context.Context, defs ...route.Definition) ([]*route.Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []*route.RouteService
	var routes []*route.Route
	for _, def := range defs {
		rs, err := c.addRouteLocked(ctx, def)
		if err != nil {
			return routes, err
		}
		added = append(added, rs)
		routes = append(routes, rs.Route())
	}

	if !c.lc.IsStarted() || len(added) == 0 {
		return routes, nil
	}
	err := c.safelyStartRouteServices(ctx, startOptions{checkClash: true, startConsumer: true, addingRoutes: true}, added...)
	if err != nil {
		c.recordStartFailure(err)
		return routes, err
	}
	return routes, nil
}

func (c *Context) addRouteLocked(ctx context.Context, def route.Definition) (*route.RouteService, error) {
	if def.ID == "" {
		def.ID = sequence.NextName("route")
	}
	if _, exists := c.routeService(def.ID); exists {
		return nil, fmt.Errorf("route %s already exists", def.ID)
	}
	ep, err := c.Endpoint(ctx, def.From)
	if err != nil {
		return nil, fmt.Errorf("resolving input of route %s: %w", def.ID, err)
	}

	r, err := route.New(c, def, ep)
	if err != nil {
		return nil, err
	}
	if def.ErrorHandler != 0 {
		if err := c.arena.Bind(def.ErrorHandler, def.ID); err != nil {
			return nil, fmt.Errorf("route %s: %w", def.ID, err)
		}
	}
	for _, f := range c.routePolicyFactories() {
		if p := f.CreatePolicy(r); p != nil {
			r.AddPolicy(p)
		}
	}
	for _, p := range r.Policies() {
		p.OnInit(r)
	}

	rs := route.NewService(c, r)
	c.routesMu.Lock()
	c.routeServices[r.ID()] = rs
	c.routeIDs = append(c.routeIDs, r.ID())
	c.routesMu.Unlock()

	uris := make([]string, 0, 1)
	for _, e := range r.Endpoints() {
		uris = append(uris, e.URI())
	}
	c.graph.AddRoute(r.ID(), uris...)

	c.notifier.Route(events.ReasonRouteAdded, r.ID())
	logging.Info("Context", "Added route %s (%s)", r.ID(), r.Description())
	return rs, nil
}

// RemoveRoute removes a stopped route, shutting it down and retiring the
// endpoints no other route uses. It reports false, without error, when the
// route is not stopped.
func (c *Context) RemoveRoute(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs, err := c.lookup(id)
	if err != nil {
		return false, err
	}
	r := rs.Route()
	r.SetLastError(nil)

	if !rs.Status().IsStopped() {
		logging.Info("Context", "Route %s is %s and cannot be removed until stopped", id, rs.Status())
		return false, nil
	}

	orphans := c.graph.Orphans(id)
	rs.SetRemovingRoutes(true)
	if err := rs.Shutdown(ctx); err != nil {
		c.setRouteError(rs, api.PhaseRemove, err)
		return false, err
	}

	c.routesMu.Lock()
	delete(c.routeServices, id)
	delete(c.assignedOrder, id)
	for i, rid := range c.routeIDs {
		if rid == id {
			c.routeIDs = append(c.routeIDs[:i], c.routeIDs[i+1:]...)
			break
		}
	}
	c.routesMu.Unlock()
	delete(c.suspended, id)
	c.removeStartupOrder(id)
	c.graph.RemoveRoute(id)

	var errs []error
	for _, uri := range orphans {
		ep, ok := c.removeEndpoint(uri)
		if !ok {
			continue
		}
		if err := c.producers.Forget(ctx, ep); err != nil {
			errs = append(errs, fmt.Errorf("releasing producers of %s: %w", uri, err))
		}
		if ep == r.Endpoint() {
			continue
		}
		if err := services.StopAndShutdownService(ctx, ep); err != nil {
			errs = append(errs, fmt.Errorf("retiring endpoint %s: %w", uri, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logging.WarnErr("Context", err, "Error retiring endpoints of route %s", id)
	}

	c.notifier.Route(events.ReasonRouteRemoved, id)
	logging.Info("Context", "Removed route %s (retired endpoints: %v)", id, orphans)
	return true, nil
}

// Route returns the route registered under id.
func (c *Context) Route(id string) (*route.Route, bool) {
	rs, ok := c.routeService(id)
	if !ok {
		return nil, false
	}
	return rs.Route(), true
}

// Routes returns the registered routes in registration order.
func (c *Context) Routes() []*route.Route {
	svcs := c.routeServicesInOrder()
	out := make([]*route.Route, len(svcs))
	for i, rs := range svcs {
		out[i] = rs.Route()
	}
	return out
}

// RouteStatus returns the status of route id.
func (c *Context) RouteStatus(id string) (api.ServiceStatus, bool) {
	rs, ok := c.routeService(id)
	if !ok {
		return "", false
	}
	return rs.Status(), true
}

// LastError returns the error recorded by the last lifecycle operation on
// route id, or nil.
func (c *Context) LastError(id string) *api.RouteError {
	rs, ok := c.routeService(id)
	if !ok {
		return nil
	}
	return rs.Route().LastError()
}

// SetLastError records err against route id; nil clears it.
func (c *Context) SetLastError(id string, err *api.RouteError) {
	if rs, ok := c.routeService(id); ok {
		rs.Route().SetLastError(err)
	}
}

// RouteInfo returns the inspection view of route id.
func (c *Context) RouteInfo(id string) (api.RouteInfo, bool) {
	rs, ok := c.routeService(id)
	if !ok {
		return api.RouteInfo{}, false
	}
	return c.infoOf(rs), true
}

// RouteInfos returns the inspection view of every route in registration
// order.
func (c *Context) RouteInfos() []api.RouteInfo {
	svcs := c.routeServicesInOrder()
	out := make([]api.RouteInfo, len(svcs))
	for i, rs := range svcs {
		out[i] = c.infoOf(rs)
	}
	return out
}

func (c *Context) infoOf(rs *route.RouteService) api.RouteInfo {
	r := rs.Route()
	order := r.StartupOrder()
	if order == 0 {
		c.routesMu.RLock()
		order = c.assignedOrder[r.ID()]
		c.routesMu.RUnlock()
	}
	return api.RouteInfo{
		ID:           r.ID(),
		EndpointURI:  r.Endpoint().URI(),
		Description:  r.Description(),
		Status:       rs.Status(),
		StartupOrder: order,
		AutoStartup:  r.AutoStartup(),
		Inflight:     c.inflight.RouteSize(r.ID()),
		Uptime:       r.Uptime(),
		LastError:    r.LastError().Info(),
	}
}

// UsedEndpoints returns the URIs of the endpoints route id uses.
func (c *Context) UsedEndpoints(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, dep := range c.graph.Dependencies(dependency.RouteNode(id)) {
		if n := c.graph.Get(dep); n != nil {
			out = append(out, n.FriendlyName)
		}
	}
	return out
}

func (c *Context) routeService(id string) (*route.RouteService, bool) {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()
	rs, ok := c.routeServices[id]
	return rs, ok
}

func (c *Context) lookup(id string) (*route.RouteService, error) {
	rs, ok := c.routeService(id)
	if !ok {
		return nil, api.NewRouteNotFoundError(id)
	}
	return rs, nil
}

func (c *Context) routeServicesInOrder() []*route.RouteService {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()
	out := make([]*route.RouteService, 0, len(c.routeIDs))
	for _, id := range c.routeIDs {
		out = append(out, c.routeServices[id])
	}
	return out
}

func (c *Context) setRouteError(rs *route.RouteService, phase api.RoutePhase, err error) {
	rs.Route().SetLastError(&api.RouteError{Phase: phase, Err: err})
}

// recordStartFailure records a batch start failure against the route it
// names.
func (c *Context) recordStartFailure(err error) {
	var fe *api.FailedToStartRouteError
	if !errors.As(err, &fe) {
		return
	}
	if rs, ok := c.routeService(fe.RouteID); ok {
		c.setRouteError(rs, api.PhaseStart, err)
	}
}
