package supervising

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"switchyard/internal/api"
	"switchyard/internal/engine"
	"switchyard/internal/events"
	"switchyard/internal/route"
	"switchyard/pkg/logging"
)

const startupTaskKey = "startup"

// Config holds the options of a Controller.
type Config struct {
	// InitialDelay defers the first start of the routes, and of every
	// route added once the context is started.
	InitialDelay time.Duration
	// BackOff is the default restart back-off.
	BackOff BackOffConfig
	// RouteBackOffs override BackOff per route id.
	RouteBackOffs map[string]BackOffConfig
	// IncludeRoutes and ExcludeRoutes select the supervised routes by id
	// pattern.
	IncludeRoutes []string
	ExcludeRoutes []string
	// Filters are consulted after the built-in filters.
	Filters []Filter
}

// DefaultConfig returns the default options.
func DefaultConfig() Config {
	return Config{BackOff: DefaultBackOff()}
}

type supervisedRoute struct {
	id    string
	order int
	seq   int
}

// Controller is a route controller that starts supervised routes itself
// and retries the ones failing to start.
type Controller struct {
	c        *engine.Context
	delegate engine.RouteController
	cfg      Config
	filter   Filter
	sched    *scheduler
	retries  *retryManager

	mu             sync.Mutex
	seq            int
	routes         map[string]supervisedRoute
	unmanaged      map[string]supervisedRoute
	exhausted      map[string]exhaustedRoute
	contextStarted bool
}

type exhaustedRoute struct {
	supervisedRoute
	err error
}

var (
	_ engine.RouteController = (*Controller)(nil)
	_ api.Service            = (*Controller)(nil)
)

// Install creates a controller for c and makes it the context's route
// controller. The context stops auto-starting routes; the controller
// starts them once the context has started. It must be installed before
// the context is started.
func Install(c *engine.Context, cfg Config) (*Controller, error) {
	if c.IsStarted() {
		return nil, errors.New("supervising controller must be installed before the context is started")
	}
	delegate := c.RouteController()
	if delegate.IsSupervising() {
		return nil, errors.New("context already has a supervising route controller")
	}
	patterns, err := PatternFilter(cfg.IncludeRoutes, cfg.ExcludeRoutes)
	if err != nil {
		return nil, err
	}
	if cfg.BackOff == (BackOffConfig{}) {
		cfg.BackOff = DefaultBackOff()
	}

	ctl := &Controller{
		c:         c,
		delegate:  delegate,
		cfg:       cfg,
		filter:    Chain(append([]Filter{AutoStartupFilter, patterns}, cfg.Filters...)...),
		sched:     &scheduler{},
		routes:    make(map[string]supervisedRoute),
		unmanaged: make(map[string]supervisedRoute),
		exhausted: make(map[string]exhaustedRoute),
	}
	ctl.retries = &retryManager{
		sched:      ctl.sched,
		notifier:   c.Notifier(),
		backOffFor: ctl.backOffFor,
		attempt:    ctl.attempt,
		exhausted:  ctl.onExhausted,
		tasks:      make(map[string]*retryTask),
	}

	c.SetAutoStartup(false)
	for _, r := range c.Routes() {
		r.AddPolicy(&policy{ctl: ctl})
		ctl.onRouteInit(r)
	}
	c.AddRoutePolicyFactory(route.PolicyFactoryFunc(func(*route.Route) route.Policy {
		return &policy{ctl: ctl}
	}))
	c.SetRouteController(ctl)
	c.Notifier().AddListener(events.ListenerFunc(ctl.onEvent))
	if err := c.Services().Add(ctl, true); err != nil {
		return nil, err
	}
	logging.Info("Supervising", "Supervising route controller installed on context %s (initial delay %s)", c.Name(), cfg.InitialDelay)
	return ctl, nil
}

// Start starts the retry scheduler. It is called by the context.
func (ctl *Controller) Start(context.Context) error {
	ctl.sched.start()
	return nil
}

// Stop cancels every pending restart and stops the scheduler.
func (ctl *Controller) Stop(context.Context) error {
	ctl.retries.cancelAll()
	ctl.sched.stop()
	return nil
}

func (ctl *Controller) onEvent(e events.Event) {
	if e.RouteID != "" || e.Message != ctl.c.Name() {
		return
	}
	switch e.Reason {
	case events.ReasonContextStarting:
		ctl.mu.Lock()
		for id, ex := range ctl.exhausted {
			ctl.routes[id] = ex.supervisedRoute
			delete(ctl.exhausted, id)
		}
		ctl.mu.Unlock()
		// The context clears its services when it stops.
		if err := ctl.c.Services().Add(ctl, true); err != nil {
			logging.WarnErr("Supervising", err, "Failed to register supervising controller")
		}
	case events.ReasonContextStarted:
		ctl.mu.Lock()
		ctl.contextStarted = true
		ctl.mu.Unlock()
		ctl.sched.schedule(startupTaskKey, ctl.cfg.InitialDelay, ctl.startRoutes)
	case events.ReasonContextStopping:
		ctl.mu.Lock()
		ctl.contextStarted = false
		ctl.mu.Unlock()
		ctl.sched.cancelTask(startupTaskKey)
		ctl.retries.cancelAll()
	}
}

// startRoutes starts the unsupervised auto-startup routes once, then the
// supervised routes in order, handing failures to the retry manager.
func (ctl *Controller) startRoutes(ctx context.Context) {
	ctl.mu.Lock()
	unmanaged := sortRoutes(ctl.unmanaged)
	supervised := sortRoutes(ctl.routes)
	ctl.mu.Unlock()

	logging.Info("Supervising", "Starting %d supervised routes (%d unsupervised)", len(supervised), len(unmanaged))
	for _, sr := range unmanaged {
		if err := ctl.delegate.StartRoute(ctx, sr.id); err != nil {
			logging.WarnErr("Supervising", err, "Failed to start unsupervised route %s", sr.id)
		}
	}
	for _, sr := range supervised {
		ctl.startSupervised(ctx, sr.id)
	}
}

func (ctl *Controller) startSupervised(ctx context.Context, id string) {
	if !ctl.IsSupervised(id) || ctl.retries.isRestarting(id) {
		return
	}
	if status, ok := ctl.c.RouteStatus(id); !ok || status.IsStarted() {
		return
	}
	if err := ctl.delegate.StartRoute(ctx, id); err != nil {
		logging.WarnErr("Supervising", err, "Failed to start route %s, scheduling restart", id)
		ctl.retries.schedule(id, err)
	}
}

// attempt starts route id unless a manual operation cancelled the retry,
// the route left supervision or it already runs. The checks are made once
// the context serializes the start.
func (ctl *Controller) attempt(ctx context.Context, id string, current func() bool) (bool, error) {
	return ctl.c.StartRouteIf(ctx, id, func() bool {
		if !current() || !ctl.IsSupervised(id) {
			return false
		}
		status, ok := ctl.c.RouteStatus(id)
		return ok && !status.IsStarted()
	})
}

func (ctl *Controller) onExhausted(id string, err error) {
	status, ok := ctl.c.RouteStatus(id)
	if !ok || status.IsStarted() {
		return
	}

	ctl.mu.Lock()
	if sr, supervised := ctl.routes[id]; supervised {
		delete(ctl.routes, id)
		ctl.exhausted[id] = exhaustedRoute{supervisedRoute: sr, err: err}
	}
	ctl.mu.Unlock()

	ctl.c.SetLastError(id, &api.RouteError{Phase: api.PhaseStart, Err: err, Unhealthy: true})
	logging.Warn("Supervising", "Route %s is no longer supervised", id)
}

func (ctl *Controller) backOffFor(id string) backoff.BackOff {
	cfg := ctl.cfg.BackOff
	if override, ok := ctl.cfg.RouteBackOffs[id]; ok {
		cfg = cfg.merge(override)
	}
	return cfg.NewBackOff()
}

// onRouteInit is called with the context's route lock held and must not
// call back into the context.
func (ctl *Controller) onRouteInit(r *route.Route) {
	res := ctl.filter(r)

	ctl.mu.Lock()
	ctl.seq++
	sr := supervisedRoute{id: r.ID(), order: r.StartupOrder(), seq: ctl.seq}
	if res.Supervised {
		ctl.routes[sr.id] = sr
	} else if r.AutoStartup() {
		ctl.unmanaged[sr.id] = sr
	}
	started := ctl.contextStarted
	ctl.mu.Unlock()

	if res.Supervised {
		logging.Debug("Supervising", "Route %s is supervised", r.ID())
	} else {
		logging.Debug("Supervising", "Route %s is not supervised: %s", r.ID(), res.Reason)
	}
	if !started {
		return
	}

	id := r.ID()
	ctl.sched.schedule("start:"+id, ctl.cfg.InitialDelay, func(ctx context.Context) {
		if res.Supervised {
			ctl.startSupervised(ctx, id)
			return
		}
		if !r.AutoStartup() {
			return
		}
		if err := ctl.delegate.StartRoute(ctx, id); err != nil {
			logging.WarnErr("Supervising", err, "Failed to start unsupervised route %s", id)
		}
	})
}

func (ctl *Controller) onRouteRemove(r *route.Route) {
	id := r.ID()
	ctl.retries.cancel(id)
	ctl.sched.cancelTask("start:" + id)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	delete(ctl.routes, id)
	delete(ctl.unmanaged, id)
	delete(ctl.exhausted, id)
}

// StartRoute cancels a pending restart of route id and starts it. A route
// that exhausted its restarts is supervised again once it starts.
func (ctl *Controller) StartRoute(ctx context.Context, id string) error {
	ctl.retries.cancel(id)
	if err := ctl.delegate.StartRoute(ctx, id); err != nil {
		return err
	}

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ex, ok := ctl.exhausted[id]; ok {
		delete(ctl.exhausted, id)
		ctl.routes[id] = ex.supervisedRoute
		logging.Info("Supervising", "Route %s is supervised again", id)
	}
	return nil
}

func (ctl *Controller) StopRoute(ctx context.Context, id string) error {
	ctl.retries.cancel(id)
	return ctl.delegate.StopRoute(ctx, id)
}

func (ctl *Controller) StopRouteWithTimeout(ctx context.Context, id string, timeout time.Duration, abortAfterTimeout bool) (bool, error) {
	ctl.retries.cancel(id)
	return ctl.delegate.StopRouteWithTimeout(ctx, id, timeout, abortAfterTimeout)
}

func (ctl *Controller) SuspendRoute(ctx context.Context, id string) error {
	ctl.retries.cancel(id)
	return ctl.delegate.SuspendRoute(ctx, id)
}

func (ctl *Controller) ResumeRoute(ctx context.Context, id string) error {
	ctl.retries.cancel(id)
	return ctl.delegate.ResumeRoute(ctx, id)
}

func (ctl *Controller) RouteStatus(id string) (api.ServiceStatus, bool) {
	return ctl.delegate.RouteStatus(id)
}

func (ctl *Controller) IsSupervising() bool { return true }

// IsSupervised reports whether route id is managed by the controller.
func (ctl *Controller) IsSupervised(id string) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	_, ok := ctl.routes[id]
	return ok
}

// SupervisedRoutes returns the supervised route ids in start order:
// explicit startup order first, then registration order.
func (ctl *Controller) SupervisedRoutes() []string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	list := sortRoutes(ctl.routes)
	out := make([]string, len(list))
	for i, sr := range list {
		out[i] = sr.id
	}
	return out
}

// Restarting returns the routes waiting for a restart.
func (ctl *Controller) Restarting() []RetryInfo {
	return ctl.retries.infos()
}

// IsRestarting reports whether route id has a pending restart.
func (ctl *Controller) IsRestarting(id string) bool {
	return ctl.retries.isRestarting(id)
}

// Exhausted returns the routes that exhausted their restarts with the last
// restart error of each.
func (ctl *Controller) Exhausted() map[string]error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	out := make(map[string]error, len(ctl.exhausted))
	for id, ex := range ctl.exhausted {
		out[id] = ex.err
	}
	return out
}

// PendingTasks returns the number of scheduled tasks not yet run.
func (ctl *Controller) PendingTasks() int {
	return ctl.sched.pending()
}

// sortRoutes orders by explicit startup order, routes without one last,
// then by registration.
func sortRoutes(m map[string]supervisedRoute) []supervisedRoute {
	out := make([]supervisedRoute, 0, len(m))
	for _, sr := range m {
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.order != b.order {
			if a.order == 0 || b.order == 0 {
				return b.order == 0
			}
			return a.order < b.order
		}
		return a.seq < b.seq
	})
	return out
}

// policy tracks route additions and removals for the controller.
type policy struct {
	route.PolicySupport
	ctl *Controller
}

func (p *policy) OnInit(r *route.Route) { p.ctl.onRouteInit(r) }

func (p *policy) OnRemove(r *route.Route) {
	// Routes are shut down when the context stops; they stay supervised.
	if p.ctl.c.IsStopping() {
		return
	}
	p.ctl.onRouteRemove(r)
}
