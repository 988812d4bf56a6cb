package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"switchyard/internal/api"
	"switchyard/internal/exchange"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

// releaseTimeout bounds how long Stop waits for busy workers.
const releaseTimeout = 30 * time.Second

// Consumer feeds exchanges sent to its endpoint into a route. It stops
// taking exchanges while suspended.
type Consumer struct {
	lc        *services.Lifecycle
	endpoint  *Endpoint
	processor api.Processor

	mu      sync.RWMutex
	routeID string
	workers *ants.Pool
}

var (
	_ api.Consumer           = (*Consumer)(nil)
	_ api.SuspendableService = (*Consumer)(nil)
	_ api.Suspendable        = (*Consumer)(nil)
	_ api.RouteIDAware       = (*Consumer)(nil)
)

func newConsumer(e *Endpoint, p api.Processor) *Consumer {
	return &Consumer{
		lc:        services.NewLifecycle("consumer:" + e.uri),
		endpoint:  e,
		processor: p,
	}
}

func (c *Consumer) Endpoint() api.Endpoint { return c.endpoint }

func (c *Consumer) SetRouteID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routeID = id
}

// RouteID returns the id of the route the consumer feeds.
func (c *Consumer) RouteID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routeID
}

func (c *Consumer) SupportsSuspension() bool { return true }

func (c *Consumer) IsSuspended() bool { return c.lc.IsSuspended() }

// Status returns the consumer's lifecycle status.
func (c *Consumer) Status() api.ServiceStatus { return c.lc.Status() }

func (c *Consumer) Start(ctx context.Context) error {
	return c.lc.Start(ctx, func(context.Context) error {
		if n := c.endpoint.opts.Workers; n > 0 {
			pool, err := ants.NewPool(n, ants.WithPanicHandler(func(p any) {
				logging.Error("Memory", fmt.Errorf("%v", p), "Route %s panicked processing an exchange from %s", c.RouteID(), c.endpoint.uri)
			}))
			if err != nil {
				return fmt.Errorf("creating worker pool for %s: %w", c.endpoint.uri, err)
			}
			c.mu.Lock()
			c.workers = pool
			c.mu.Unlock()
		}
		c.endpoint.register(c)
		return nil
	})
}

// Stop stops taking exchanges and waits for the busy workers.
func (c *Consumer) Stop(ctx context.Context) error {
	return c.lc.Stop(ctx, func(context.Context) error {
		c.endpoint.unregister(c)

		c.mu.Lock()
		pool := c.workers
		c.workers = nil
		c.mu.Unlock()

		if pool != nil {
			if err := pool.ReleaseTimeout(releaseTimeout); err != nil {
				return fmt.Errorf("releasing workers of %s: %w", c.endpoint.uri, err)
			}
		}
		return nil
	})
}

// Suspend stops taking exchanges. Exchanges already handed over finish.
func (c *Consumer) Suspend(ctx context.Context) error {
	return c.lc.Suspend(ctx, func(context.Context) error {
		c.endpoint.unregister(c)
		return nil
	})
}

func (c *Consumer) Resume(ctx context.Context) error {
	return c.lc.Resume(ctx, func(context.Context) error {
		c.endpoint.register(c)
		return nil
	})
}

func (c *Consumer) deliver(ctx context.Context, ex *exchange.Exchange) error {
	c.mu.RLock()
	pool := c.workers
	c.mu.RUnlock()

	if pool == nil {
		return c.processor.Process(ctx, ex)
	}

	// The sender may return before the exchange is processed.
	ctx = context.WithoutCancel(ctx)
	err := pool.Submit(func() {
		if err := c.processor.Process(ctx, ex); err != nil {
			logging.WarnErr("Memory", err, "Route %s failed processing exchange %s", c.RouteID(), ex.ID())
		}
	})
	if err != nil {
		return fmt.Errorf("handing exchange to %s: %w", c.endpoint.uri, err)
	}
	return nil
}
