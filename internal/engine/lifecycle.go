package engine

import (
	"context"
	"errors"
	"fmt"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/route"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

// Start starts the context and, when auto-startup is on, its routes. A
// suspended context is resumed instead. When a lifecycle strategy vetoes
// the start the context is stopped again and Start returns nil, unless the
// veto asks to be rethrown.
func (c *Context) Start(ctx context.Context) error {
	if c.lc.IsSuspended() {
		return c.Resume(ctx)
	}
	if c.lc.IsStarted() {
		return nil
	}
	c.vetoed.Store(false)

	err := c.lc.Start(ctx, c.doStart)
	if err == nil {
		c.notifier.Context(events.ReasonContextStarted, c.name)
		logging.Info("Context", "Context %s started (%d routes)", c.name, len(c.routeServicesInOrder()))
		return nil
	}

	var veto *api.VetoError
	if errors.As(err, &veto) {
		c.vetoed.Store(true)
		logging.Warn("Context", "Context %s start vetoed: %s", c.name, veto.Reason)
		if stopErr := c.Stop(ctx); stopErr != nil {
			logging.WarnErr("Context", stopErr, "Error stopping vetoed context %s", c.name)
		}
		if veto.Rethrow {
			return err
		}
		return nil
	}

	c.notifier.Emit(events.Event{
		Type:    events.EventTypeWarning,
		Reason:  events.ReasonContextStartupFailure,
		Message: c.name,
		Err:     err,
	})
	logging.Error("Context", err, "Context %s failed to start", c.name)
	return fmt.Errorf("starting context %s: %w", c.name, err)
}

func (c *Context) doStart(ctx context.Context) error {
	c.notifier.Context(events.ReasonContextStarting, c.name)
	logging.Info("Context", "Starting context %s", c.name)

	for _, st := range c.LifecycleStrategies() {
		if err := st.OnContextStart(ctx); err != nil {
			return err
		}
	}

	for _, comp := range c.componentsSorted() {
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("starting component %T: %w", comp, err)
		}
	}
	for _, ep := range c.Endpoints() {
		if err := ep.Start(ctx); err != nil {
			return fmt.Errorf("starting endpoint %s: %w", ep.URI(), err)
		}
	}
	if err := c.registry.Add(c.producers, true); err != nil {
		return err
	}
	if err := services.StartServices(ctx, c.registry.All()...); err != nil {
		return err
	}
	if err := c.inflight.Start(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.autoStartup.Load() {
		logging.Info("Context", "Skipping starting of routes as context %s is configured with autoStartup=false", c.name)
		return c.fireStartupListeners(ctx)
	}
	list := c.routeServicesInOrder()
	if len(list) == 0 {
		return c.fireStartupListeners(ctx)
	}
	err := c.safelyStartRouteServices(api.WithStartingRoutes(ctx),
		startOptions{checkClash: true, startConsumer: true, addingRoutes: true}, list...)
	if err != nil {
		c.recordStartFailure(err)
	}
	return err
}

// Stop stops the context. Every route is shut down, including routes that
// failed to start; teardown failures are logged and never returned. The
// routes stay registered and start again with the next Start.
func (c *Context) Stop(ctx context.Context) error {
	return c.lc.Stop(ctx, c.doStop)
}

func (c *Context) doStop(ctx context.Context) error {
	c.stopping.Store(true)
	defer c.stopping.Store(false)

	c.notifier.Context(events.ReasonContextStopping, c.name)
	logging.Info("Context", "Stopping context %s", c.name)

	c.mu.Lock()
	orders := append([]route.StartupOrder(nil), c.routeStartupOrder...)
	if err := c.strategy.ShutdownForced(ctx, orders); err != nil {
		logging.WarnErr("Context", err, "Error shutting down route consumers")
	}

	done := make(map[string]struct{}, len(orders))
	route.SortStartupOrders(orders, true)
	for _, o := range orders {
		c.shutdownRouteService(ctx, o.Service)
		done[o.Route.ID()] = struct{}{}
	}
	// Routes that never started, or failed to, still hold resources.
	all := c.routeServicesInOrder()
	for i := len(all) - 1; i >= 0; i-- {
		if _, ok := done[all[i].ID()]; ok {
			continue
		}
		c.shutdownRouteService(ctx, all[i])
	}
	c.routeStartupOrder = nil
	c.suspended = make(map[string]*route.RouteService)
	c.mu.Unlock()

	for _, st := range c.LifecycleStrategies() {
		st.OnContextStop(ctx)
	}
	c.stopEndpoints(ctx)
	c.stopComponents(ctx)
	c.registry.StopAll(ctx)
	if err := c.inflight.Stop(ctx); err != nil {
		logging.WarnErr("Context", err, "Error stopping inflight repository")
	}

	c.notifier.Context(events.ReasonContextStopped, c.name)
	logging.Info("Context", "Context %s stopped", c.name)
	return nil
}

func (c *Context) shutdownRouteService(ctx context.Context, rs *route.RouteService) {
	if err := rs.Shutdown(ctx); err != nil {
		logging.WarnErr("Context", err, "Error shutting down route %s", rs.ID())
		c.notifier.RouteFailure(events.ReasonServiceStopFailure, rs.ID(), err)
	}
}

// Suspend suspends every started route. Routes whose consumer cannot be
// suspended are stopped instead; Resume brings back exactly the routes
// suspended here.
func (c *Context) Suspend(ctx context.Context) error {
	return c.lc.Suspend(ctx, c.doSuspend)
}

func (c *Context) doSuspend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logging.Info("Context", "Suspending context %s", c.name)
	var orders []route.StartupOrder
	for _, rs := range c.routeServicesInOrder() {
		if !rs.IsStarted() {
			continue
		}
		c.suspended[rs.ID()] = rs
		orders = append(orders, c.startupOrderFor(rs))
	}

	if err := c.strategy.Suspend(ctx, orders, c.strategy.Timeout()); err != nil {
		return err
	}

	for _, o := range orders {
		var err error
		if o.Route.SupportsSuspension() {
			err = o.Service.Suspend(ctx)
		} else {
			o.Service.SetRemovingRoutes(false)
			err = o.Service.Stop(ctx)
		}
		if err != nil {
			return err
		}
	}

	c.notifier.Context(events.ReasonContextSuspended, c.name)
	logging.Info("Context", "Context %s suspended (%d routes)", c.name, len(orders))
	return nil
}

// Resume resumes the routes suspended by Suspend. A failure is reported
// with a resume failure event and returned as *api.ResumeFailedError.
func (c *Context) Resume(ctx context.Context) error {
	return c.lc.Resume(ctx, c.doResume)
}

func (c *Context) doResume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logging.Info("Context", "Resuming context %s", c.name)
	var list []*route.RouteService
	for _, rs := range c.routeServicesInOrder() {
		if _, ok := c.suspended[rs.ID()]; ok {
			list = append(list, rs)
		}
	}
	c.suspended = make(map[string]*route.RouteService)

	err := c.safelyStartRouteServices(ctx, startOptions{startConsumer: true, resumeOnly: true}, list...)
	if err != nil {
		c.recordStartFailure(err)
		c.notifier.Emit(events.Event{
			Type:    events.EventTypeWarning,
			Reason:  events.ReasonContextResumeFailure,
			Message: c.name,
			Err:     err,
		})
		return &api.ResumeFailedError{Err: err}
	}

	c.notifier.Context(events.ReasonContextResumed, c.name)
	logging.Info("Context", "Context %s resumed (%d routes)", c.name, len(list))
	return nil
}
