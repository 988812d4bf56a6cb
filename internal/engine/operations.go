package engine

import (
	"context"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/route"
	"switchyard/pkg/logging"
)

// StartRoute starts route id. Nothing happens until the context is
// started; the route then starts with the context.
func (c *Context) StartRoute(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startRouteLocked(ctx, id)
}

// StartRouteIf starts route id like StartRoute when cond holds. cond runs
// after every other route operation in progress has finished, so an
// operation that wins the race can turn the start down. It reports whether
// the start went ahead.
func (c *Context) StartRouteIf(ctx context.Context, id string, cond func() bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !cond() {
		return false, nil
	}
	return true, c.startRouteLocked(ctx, id)
}

func (c *Context) startRouteLocked(ctx context.Context, id string) error {
	rs, err := c.lookup(id)
	if err != nil {
		return err
	}
	rs.Route().SetLastError(nil)

	if !c.lc.IsStarted() {
		logging.Debug("Context", "Context %s not started, route %s starts with it", c.name, id)
		return nil
	}
	if err := c.safelyStartRouteServices(ctx, startOptions{checkClash: true, startConsumer: true}, rs); err != nil {
		c.setRouteError(rs, api.PhaseStart, err)
		return err
	}
	return nil
}

// StopRoute gracefully stops route id using the shutdown strategy's
// default timeout.
func (c *Context) StopRoute(ctx context.Context, id string) error {
	_, err := c.StopRouteWithTimeout(ctx, id, c.strategy.Timeout(), false)
	return err
}

// StopRouteWithTimeout gracefully stops route id within timeout. When the
// timeout expires and abortAfterTimeout is set the stop is abandoned, the
// route keeps running and false is returned.
func (c *Context) StopRouteWithTimeout(ctx context.Context, id string, timeout time.Duration, abortAfterTimeout bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs, err := c.lookup(id)
	if err != nil {
		return false, err
	}
	rs.Route().SetLastError(nil)

	ok, err := c.stopRouteLocked(ctx, rs, timeout, abortAfterTimeout)
	if err != nil {
		c.setRouteError(rs, api.PhaseStop, err)
	}
	return ok, err
}

func (c *Context) stopRouteLocked(ctx context.Context, rs *route.RouteService, timeout time.Duration, abortAfterTimeout bool) (bool, error) {
	o := c.startupOrderFor(rs)
	completed, err := c.strategy.Shutdown(ctx, []route.StartupOrder{o}, timeout, abortAfterTimeout)
	if err != nil {
		return false, err
	}
	if !completed {
		// Suspendable consumers were resumed by the strategy; the others
		// were stopped and need starting again.
		if in := rs.Input(); in != nil && !o.Route.SupportsSuspension() {
			if err := in.Start(ctx); err != nil {
				return false, err
			}
		}
		logging.Warn("Context", "Stopping route %s timed out after %s, route left running", rs.ID(), timeout)
		return false, nil
	}

	rs.SetRemovingRoutes(false)
	if err := rs.Stop(ctx); err != nil {
		return false, err
	}
	c.removeStartupOrder(rs.ID())
	delete(c.suspended, rs.ID())
	logging.Info("Context", "Route %s stopped", rs.ID())
	return true, nil
}

// SuspendRoute suspends route id. A route whose consumer cannot be
// suspended is stopped instead.
func (c *Context) SuspendRoute(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs, err := c.lookup(id)
	if err != nil {
		return err
	}
	r := rs.Route()
	r.SetLastError(nil)

	if !c.lc.IsStarted() || !rs.IsStarted() {
		return nil
	}
	if !r.SupportsSuspension() {
		_, err := c.stopRouteLocked(ctx, rs, c.strategy.Timeout(), false)
		if err != nil {
			c.setRouteError(rs, api.PhaseSuspend, err)
		}
		return err
	}

	o := c.startupOrderFor(rs)
	if err := c.strategy.Suspend(ctx, []route.StartupOrder{o}, c.strategy.Timeout()); err != nil {
		c.setRouteError(rs, api.PhaseSuspend, err)
		return err
	}
	if err := rs.Suspend(ctx); err != nil {
		c.setRouteError(rs, api.PhaseSuspend, err)
		return err
	}
	logging.Info("Context", "Route %s suspended", id)
	return nil
}

// ResumeRoute resumes route id. A route whose consumer cannot be suspended
// is started instead.
func (c *Context) ResumeRoute(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs, err := c.lookup(id)
	if err != nil {
		return err
	}
	r := rs.Route()
	r.SetLastError(nil)

	if !c.lc.IsStarted() {
		return nil
	}
	opts := startOptions{checkClash: true, startConsumer: true}
	if r.SupportsSuspension() {
		if !rs.IsSuspended() {
			return nil
		}
		opts = startOptions{startConsumer: true, resumeOnly: true}
	}
	if err := c.safelyStartRouteServices(ctx, opts, rs); err != nil {
		c.setRouteError(rs, api.PhaseResume, err)
		return err
	}
	logging.Info("Context", "Route %s resumed", id)
	return nil
}
