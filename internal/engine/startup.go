package engine

import (
	"context"

	"switchyard/internal/api"
	"switchyard/internal/route"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

// StartupListener is notified once routes are warmed up and again once
// their consumers are started. Listeners added while routes start are
// notified at the next of those points; listeners added to a started
// context are notified right away.
type StartupListener interface {
	OnContextStarted(ctx context.Context, alreadyStarted bool) error
}

// StartupListenerFunc adapts a function to StartupListener.
type StartupListenerFunc func(ctx context.Context, alreadyStarted bool) error

// OnContextStarted calls f(ctx, alreadyStarted).
func (f StartupListenerFunc) OnContextStarted(ctx context.Context, alreadyStarted bool) error {
	return f(ctx, alreadyStarted)
}

// AddStartupListener registers l.
func (c *Context) AddStartupListener(ctx context.Context, l StartupListener) error {
	if c.lc.IsStarted() {
		return l.OnContextStarted(ctx, true)
	}
	c.extMu.Lock()
	defer c.extMu.Unlock()
	c.startupListeners = append(c.startupListeners, l)
	return nil
}

func (c *Context) fireStartupListeners(ctx context.Context) error {
	c.extMu.Lock()
	pending := c.startupListeners
	c.startupListeners = nil
	c.extMu.Unlock()

	started := c.lc.IsStarted()
	for _, l := range pending {
		if err := l.OnContextStarted(ctx, started); err != nil {
			return err
		}
	}
	return nil
}

type startOptions struct {
	// checkClash verifies the startup orders of the batch.
	checkClash bool
	// startConsumer starts or resumes consumers after warm-up.
	startConsumer bool
	// resumeOnly resumes suspended consumers instead of starting them.
	resumeOnly bool
	// addingRoutes skips consumers of routes that do not auto start.
	addingRoutes bool
}

// safelyStartRouteServices starts a batch of route services: it assigns
// startup orders, checks them for clashes, warms up every route in order,
// then starts (or resumes) their consumers in order. Must be called with
// c.mu held.
func (c *Context) safelyStartRouteServices(ctx context.Context, opts startOptions, svcs ...*route.RouteService) error {
	seen := make(map[string]struct{}, len(svcs))
	var inputs []route.StartupOrder
	for _, rs := range svcs {
		if _, dup := seen[rs.ID()]; dup {
			continue
		}
		seen[rs.ID()] = struct{}{}
		inputs = append(inputs, c.startupOrderFor(rs))
	}

	if opts.checkClash {
		if err := c.checkStartupOrderClash(inputs); err != nil {
			return err
		}
	}

	route.SortStartupOrders(inputs, false)

	if err := c.warmUpRoutes(ctx, inputs); err != nil {
		return err
	}
	if err := c.fireStartupListeners(ctx); err != nil {
		return err
	}

	if opts.startConsumer {
		if err := c.startRouteConsumers(ctx, inputs, opts); err != nil {
			return err
		}
	}
	return c.fireStartupListeners(ctx)
}

// startupOrderFor returns the route's explicit order, or the order it was
// given before, or the next default order.
func (c *Context) startupOrderFor(rs *route.RouteService) route.StartupOrder {
	r := rs.Route()
	order := r.StartupOrder()
	if order == 0 {
		c.routesMu.Lock()
		assigned, ok := c.assignedOrder[r.ID()]
		if !ok {
			assigned = c.defaultOrder
			c.defaultOrder++
			c.assignedOrder[r.ID()] = assigned
		}
		c.routesMu.Unlock()
		order = assigned
	}
	return route.StartupOrder{Order: order, Route: r, Service: rs}
}

// checkStartupOrderClash fails when two different routes share an order,
// within the batch or against a route already started. The same route
// appearing again is not a clash.
func (c *Context) checkStartupOrderClash(inputs []route.StartupOrder) error {
	taken := make(map[int]route.StartupOrder, len(c.routeStartupOrder)+len(inputs))
	for _, o := range c.routeStartupOrder {
		taken[o.Order] = o
	}
	for _, o := range inputs {
		if other, ok := taken[o.Order]; ok && other.Route.ID() != o.Route.ID() {
			clash := &api.StartupOrderClashError{
				Order:         o.Order,
				RouteID:       o.Route.ID(),
				OtherRouteID:  other.Route.ID(),
				OtherEndpoint: other.Route.Endpoint().URI(),
			}
			return api.NewFailedToStartRouteError(o.Route.ID(), o.Route.Description(), clash)
		}
		taken[o.Order] = o
	}
	return nil
}

func (c *Context) warmUpRoutes(ctx context.Context, inputs []route.StartupOrder) error {
	for _, o := range inputs {
		if err := o.Service.WarmUp(api.WithSetupRoute(ctx, o.Route.ID())); err != nil {
			return err
		}
	}
	return nil
}

// startRouteConsumers starts the consumers of a warmed up batch in order.
// The multiple consumers check runs per route, so routes earlier in the
// batch keep their consumer when a later one is rejected.
func (c *Context) startRouteConsumers(ctx context.Context, inputs []route.StartupOrder, opts startOptions) error {
	for _, o := range inputs {
		rs, r := o.Service, o.Route

		if opts.addingRoutes && !(c.autoStartup.Load() && r.AutoStartup()) {
			logging.Info("Context", "Skipping starting of route %s as it is configured with autoStartup=false", r.ID())
			continue
		}
		if !opts.resumeOnly && rs.IsStarted() {
			continue
		}

		consumer := rs.Input()
		if consumer == nil {
			continue
		}
		if err := c.checkMultipleConsumers(o); err != nil {
			return err
		}

		// A suspended route is resumed even when asked to start.
		resume := r.SupportsSuspension() && (opts.resumeOnly || rs.IsSuspended())
		if err := c.startConsumer(ctx, o, consumer, resume); err != nil {
			return api.NewFailedToStartRouteError(r.ID(), r.Description(), err)
		}

		if !c.hasStartupOrder(r.ID()) {
			c.routeStartupOrder = append(c.routeStartupOrder, o)
		}

		var err error
		if resume {
			err = rs.Resume(ctx)
		} else {
			err = rs.Start(ctx)
		}
		if err != nil {
			return err
		}
		logging.Info("Context", "Route %s started and consuming from %s", r.ID(), r.Endpoint().URI())
	}
	return nil
}

func (c *Context) startConsumer(ctx context.Context, o route.StartupOrder, consumer api.Consumer, resume bool) error {
	if resume {
		_, err := services.ResumeService(ctx, consumer)
		return err
	}
	for _, st := range c.LifecycleStrategies() {
		st.OnServiceAdd(consumer, o.Route)
	}
	return consumer.Start(ctx)
}

// checkMultipleConsumers fails when another route already consumes from an
// endpoint that does not support multiple consumers.
func (c *Context) checkMultipleConsumers(o route.StartupOrder) error {
	ep := o.Route.Endpoint()
	if api.AllowsMultipleConsumers(ep) {
		return nil
	}
	for _, other := range c.routeStartupOrder {
		if other.Route.ID() == o.Route.ID() {
			continue
		}
		if other.Route.Endpoint().URI() == ep.URI() {
			return api.NewFailedToStartRouteError(o.Route.ID(), o.Route.Description(),
				&api.MultipleConsumersError{RouteID: o.Route.ID(), EndpointURI: ep.URI()})
		}
	}
	return nil
}

func (c *Context) hasStartupOrder(id string) bool {
	for _, o := range c.routeStartupOrder {
		if o.Route.ID() == id {
			return true
		}
	}
	return false
}

func (c *Context) removeStartupOrder(id string) {
	for i, o := range c.routeStartupOrder {
		if o.Route.ID() == id {
			c.routeStartupOrder = append(c.routeStartupOrder[:i], c.routeStartupOrder[i+1:]...)
			return
		}
	}
}
