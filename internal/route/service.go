package route

import (
	"context"
	"fmt"
	"sync/atomic"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

// RouteService gives a Route its own lifecycle, independent of the context
// lifecycle: warm-up, start, stop, suspend, resume and shutdown.
//
// Warm-up is guarded by two flags. The warm-up flag is cleared on stop so a
// restarted route rebuilds its child services. The endpoint flag is only
// cleared on shutdown; endpoints outlive route restarts.
type RouteService struct {
	lc    *services.Lifecycle
	host  Host
	route *Route
	log   logging.RouteLogger

	warmUpDone     atomic.Bool
	endpointDone   atomic.Bool
	removingRoutes atomic.Bool

	// inputs holds the consumer gathered at warm-up.
	inputs atomic.Pointer[api.Consumer]
}

// NewService wraps r.
func NewService(host Host, r *Route) *RouteService {
	return &RouteService{
		lc:    services.NewLifecycle("routeService:" + r.ID()),
		host:  host,
		route: r,
		log:   logging.WithRoute("RouteService", r.ID()),
	}
}

func (s *RouteService) ID() string { return s.route.ID() }

// Route returns the wrapped route.
func (s *RouteService) Route() *Route { return s.route }

// Status returns the lifecycle status of the route service.
func (s *RouteService) Status() api.ServiceStatus { return s.lc.Status() }

// IsStarted reports whether the route service is started.
func (s *RouteService) IsStarted() bool { return s.lc.IsStarted() }

// IsSuspended reports whether the route service is suspended.
func (s *RouteService) IsSuspended() bool { return s.lc.IsSuspended() }

// IsWarmedUp reports whether warm-up ran since the last stop.
func (s *RouteService) IsWarmedUp() bool { return s.warmUpDone.Load() }

// SetRemovingRoutes makes the next stop also remove the route from the
// context's route set.
func (s *RouteService) SetRemovingRoutes(v bool) { s.removingRoutes.Store(v) }

// IsRemovingRoutes reports the removing-routes flag.
func (s *RouteService) IsRemovingRoutes() bool { return s.removingRoutes.Load() }

// Input returns the consumer gathered on warm-up, or nil.
func (s *RouteService) Input() api.Consumer {
	if p := s.inputs.Load(); p != nil {
		return *p
	}
	return nil
}

// WarmUp starts the endpoint once, creates the consumer, starts every
// non-consumer child service and registers the route with the lifecycle
// strategies, the inflight repository and the context's route set. It is
// idempotent until the next stop.
func (s *RouteService) WarmUp(ctx context.Context) error {
	if err := s.doWarmUp(ctx); err != nil {
		return api.NewFailedToStartRouteError(s.route.ID(), s.route.Description(), err)
	}
	return nil
}

func (s *RouteService) doWarmUp(ctx context.Context) error {
	if s.endpointDone.CompareAndSwap(false, true) {
		if err := s.route.Endpoint().Start(ctx); err != nil {
			s.endpointDone.Store(false)
			return fmt.Errorf("starting endpoint %s: %w", s.route.Endpoint().URI(), err)
		}
	}

	if !s.warmUpDone.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.warmUpRoute(ctx); err != nil {
		// A partially warmed route must be warmed again on retry.
		s.warmUpDone.Store(false)
		return err
	}
	return nil
}

func (s *RouteService) warmUpRoute(ctx context.Context) error {
	s.log.Debug("Warming up route")
	r := s.route

	if err := r.initializeServices(); err != nil {
		return err
	}

	var consumer api.Consumer
	var children []api.Service
	for _, svc := range services.FlattenChildren(r.Services()...) {
		if c, ok := svc.(api.Consumer); ok {
			consumer = c
			continue
		}
		children = append(children, svc)
	}
	if consumer != nil {
		s.inputs.Store(&consumer)
	}

	strategies := s.host.LifecycleStrategies()
	for _, svc := range children {
		for _, st := range strategies {
			st.OnServiceAdd(svc, r)
		}
		if err := svc.Start(ctx); err != nil {
			return err
		}
	}

	for _, st := range strategies {
		st.OnRoutesAdd([]*Route{r})
	}
	s.host.Inflight().AddRoute(r.ID())
	s.host.AddToRouteSet(r)
	s.log.Info("Warmed up route (%d child services)", len(children))
	return nil
}

// Start warms up the route, starts the route itself and notifies the route
// policies. The consumer is started by the context, not here.
func (s *RouteService) Start(ctx context.Context) error {
	return s.lc.Start(ctx, s.doStart)
}

func (s *RouteService) doStart(ctx context.Context) error {
	if err := s.WarmUp(ctx); err != nil {
		return err
	}
	if err := s.route.Start(ctx); err != nil {
		return api.NewFailedToStartRouteError(s.route.ID(), s.route.Description(), err)
	}
	for _, p := range s.route.Policies() {
		p.OnStart(s.route)
	}
	s.host.Notifier().Route(events.ReasonRouteStarted, s.route.ID())
	s.log.Info("Route started")
	return nil
}

// Stop stops every child service of the route, error handlers last. When
// the context itself is stopping the children are also shut down. The
// warm-up flag is cleared so a later start warms up again.
func (s *RouteService) Stop(ctx context.Context) error {
	return s.lc.Stop(ctx, s.doStop)
}

func (s *RouteService) doStop(ctx context.Context) error {
	r := s.route
	shuttingDown := s.host.IsStopping()

	list := s.gatherServices()
	s.stopChildServices(ctx, list, shuttingDown)

	if shuttingDown {
		s.logFailure(services.StopAndShutdownService(ctx, r), r)
	} else {
		s.logFailure(r.Stop(ctx), r)
	}

	for _, p := range r.Policies() {
		p.OnStop(r)
	}
	if s.removingRoutes.Load() {
		s.host.RemoveFromRouteSet(r)
	}
	s.warmUpDone.Store(false)
	s.host.Notifier().Route(events.ReasonRouteStopped, r.ID())
	s.log.Info("Route stopped")
	return nil
}

// Shutdown stops and shuts down every child service, the route and its
// endpoint, removes the route from the inflight repository and the
// context, and clears both warm-up flags.
func (s *RouteService) Shutdown(ctx context.Context) error {
	return s.lc.Shutdown(ctx, nil, s.doShutdown)
}

func (s *RouteService) doShutdown(ctx context.Context) error {
	r := s.route

	list := s.gatherServices()
	s.stopChildServices(ctx, list, true)
	s.logFailure(services.StopAndShutdownService(ctx, r), r)
	s.logFailure(services.StopAndShutdownService(ctx, r.Endpoint()), r.Endpoint())

	for _, p := range r.Policies() {
		p.OnRemove(r)
	}
	for _, st := range s.host.LifecycleStrategies() {
		st.OnRoutesRemove([]*Route{r})
	}

	s.host.Inflight().RemoveRoute(r.ID())
	s.host.RemoveFromRouteSet(r)
	s.host.ErrorHandlers().Unbind(r.ID())

	s.inputs.Store(nil)
	r.clearServices()
	s.warmUpDone.Store(false)
	s.endpointDone.Store(false)
	s.log.Info("Route shut down")
	return nil
}

// Suspend notifies the route policies. Quiescing the consumer is the job of
// the context's shutdown strategy.
func (s *RouteService) Suspend(ctx context.Context) error {
	return s.lc.Suspend(ctx, func(context.Context) error {
		for _, p := range s.route.Policies() {
			p.OnSuspend(s.route)
		}
		s.host.Notifier().Route(events.ReasonRouteSuspended, s.route.ID())
		return nil
	})
}

// Resume notifies the route policies.
func (s *RouteService) Resume(ctx context.Context) error {
	return s.lc.Resume(ctx, func(context.Context) error {
		for _, p := range s.route.Policies() {
			p.OnResume(s.route)
		}
		s.host.Notifier().Route(events.ReasonRouteResumed, s.route.ID())
		return nil
	})
}

// gatherServices returns the route's child services followed by the
// route-scoped error handlers, so the handlers stop after their dependents.
func (s *RouteService) gatherServices() []api.Service {
	list := services.FlattenChildren(s.route.Services()...)
	list = append(list, s.host.ErrorHandlers().ServicesForRoute(s.route.ID())...)
	return list
}

func (s *RouteService) stopChildServices(ctx context.Context, list []api.Service, shutdown bool) {
	strategies := s.host.LifecycleStrategies()
	for _, svc := range list {
		var err error
		if shutdown {
			err = services.StopAndShutdownService(ctx, svc)
			for _, st := range strategies {
				st.OnServiceRemove(svc, s.route)
			}
		} else {
			err = svc.Stop(ctx)
		}
		s.logFailure(err, svc)
	}
}

// logFailure swallows teardown failures after logging them and emitting a
// service stop failure event.
func (s *RouteService) logFailure(err error, svc any) {
	if err == nil {
		return
	}
	s.log.Warn(err, "Error stopping %T, continuing", svc)
	s.host.Notifier().RouteFailure(events.ReasonServiceStopFailure, s.route.ID(), err)
}

// String implements fmt.Stringer.
func (s *RouteService) String() string {
	return "RouteService[" + s.route.ID() + "]"
}
