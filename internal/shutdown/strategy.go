// Package shutdown implements the graceful shutdown and suspend strategy
// used by the engine to quiesce route consumers.
//
// A graceful shutdown first stops the intake of every route, suspending
// consumers that support it and stopping the others, then waits for the
// inflight exchanges of those routes to drain. Suspended consumers are
// stopped once the routes are drained, unless only a suspend was asked for.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/inflight"
	"switchyard/internal/route"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

const (
	DefaultTimeout      = 45 * time.Second
	DefaultPollInterval = time.Second
)

// Config holds the options of the default strategy.
type Config struct {
	Inflight *inflight.Repository
	// Timeout bounds a graceful shutdown. Zero means DefaultTimeout.
	Timeout time.Duration
	// ShutdownRoutesInOrder shuts routes down in ascending startup order.
	// By default they are shut down in reverse, so a route stops consuming
	// before the routes it feeds.
	ShutdownRoutesInOrder bool
	// PollInterval is how often inflight exchanges are counted while
	// draining. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// ShutdownNowOnTimeout stops the remaining consumers when the timeout
	// expires instead of leaving them suspended.
	ShutdownNowOnTimeout bool
	// SuppressLoggingOnTimeout hides the list of pending exchanges.
	SuppressLoggingOnTimeout bool
}

// Strategy is the default shutdown strategy.
type Strategy struct {
	cfg Config
}

// New creates a strategy with cfg, applying defaults.
func New(cfg Config) *Strategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Inflight == nil {
		cfg.Inflight = inflight.New()
	}
	return &Strategy{cfg: cfg}
}

// Timeout returns the default graceful timeout.
func (s *Strategy) Timeout() time.Duration {
	return s.cfg.Timeout
}

// Shutdown gracefully shuts down the consumers of orders within timeout.
// It reports false when the timeout expired and abortAfterTimeout was set;
// in that case every consumer it had quiesced is started again.
func (s *Strategy) Shutdown(ctx context.Context, orders []route.StartupOrder, timeout time.Duration, abortAfterTimeout bool) (bool, error) {
	return s.doShutdown(ctx, orders, timeout, false, abortAfterTimeout, false)
}

// ShutdownForced stops the consumers of orders immediately without waiting
// for inflight exchanges.
func (s *Strategy) ShutdownForced(ctx context.Context, orders []route.StartupOrder) error {
	_, err := s.doShutdown(ctx, orders, s.cfg.Timeout, false, false, true)
	return err
}

// Suspend quiesces the consumers of orders and waits for their inflight
// exchanges, leaving suspendable consumers suspended.
func (s *Strategy) Suspend(ctx context.Context, orders []route.StartupOrder, timeout time.Duration) error {
	_, err := s.doShutdown(ctx, orders, timeout, true, false, false)
	return err
}

func (s *Strategy) doShutdown(ctx context.Context, orders []route.StartupOrder, timeout time.Duration, suspendOnly, abortAfterTimeout, forced bool) (bool, error) {
	if len(orders) == 0 {
		return true, nil
	}
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}

	list := make([]route.StartupOrder, len(orders))
	copy(list, orders)
	route.SortStartupOrders(list, !s.cfg.ShutdownRoutesInOrder)

	verb := "shutdown"
	if suspendOnly {
		verb = "suspend"
	}

	if forced {
		logging.Info("Shutdown", "Starting to force %s of %d routes", verb, len(list))
		return true, s.stopConsumers(ctx, list)
	}

	logging.Info("Shutdown", "Starting to graceful %s %d routes (timeout %s)", verb, len(list), timeout)

	// Stop intake on every route before draining.
	var suspended []route.StartupOrder
	var errs []error
	for _, o := range list {
		c := o.Consumer()
		if c == nil {
			continue
		}
		if api.SuspendsConsumer(c) {
			if err := c.(api.SuspendableService).Suspend(ctx); err != nil {
				errs = append(errs, fmt.Errorf("suspending consumer of route %s: %w", o.Route.ID(), err))
				continue
			}
			suspended = append(suspended, o)
			logging.Debug("Shutdown", "Route %s suspended and %s deferred", o.Route.ID(), verb)
			continue
		}
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping consumer of route %s: %w", o.Route.ID(), err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.awaitInflight(drainCtx, list); err != nil {
		if abortAfterTimeout {
			logging.Warn("Shutdown", "Timeout occurred during graceful %s; aborting and restarting %d consumers", verb, len(suspended))
			for _, o := range suspended {
				if err := o.Consumer().(api.SuspendableService).Resume(ctx); err != nil {
					errs = append(errs, fmt.Errorf("resuming consumer of route %s: %w", o.Route.ID(), err))
				}
			}
			return false, errors.Join(errs...)
		}
		if !s.cfg.SuppressLoggingOnTimeout {
			logging.Warn("Shutdown", "Timeout occurred during graceful %s, %d inflight exchanges pending: %s", verb, s.pending(list), pendingDetails(s.cfg.Inflight, list))
		}
		if s.cfg.ShutdownNowOnTimeout {
			logging.Warn("Shutdown", "Forcing %s of remaining consumers", verb)
			return true, errors.Join(append(errs, s.stopConsumers(ctx, list))...)
		}
	}

	if !suspendOnly {
		for _, o := range suspended {
			if err := o.Consumer().Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stopping consumer of route %s: %w", o.Route.ID(), err))
			}
		}
	}

	logging.Info("Shutdown", "Graceful %s of %d routes completed", verb, len(list))
	return true, errors.Join(errs...)
}

// stopConsumers stops every consumer, best effort.
func (s *Strategy) stopConsumers(ctx context.Context, list []route.StartupOrder) error {
	var errs []error
	for _, o := range list {
		c := o.Consumer()
		if c == nil {
			continue
		}
		if err := services.StopServices(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", o.Route.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Strategy) awaitInflight(ctx context.Context, list []route.StartupOrder) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n := s.pending(list)
		if n == 0 {
			return nil
		}
		logging.Info("Shutdown", "Waiting as there are still %d inflight exchanges to complete", n)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Strategy) pending(list []route.StartupOrder) int {
	n := 0
	for _, o := range list {
		n += s.cfg.Inflight.RouteSize(o.Route.ID())
	}
	return n
}

func pendingDetails(repo *inflight.Repository, list []route.StartupOrder) string {
	out := ""
	for _, o := range list {
		if n := repo.RouteSize(o.Route.ID()); n > 0 {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%s=%d", o.Route.ID(), n)
		}
	}
	return out
}
