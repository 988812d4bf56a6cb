package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"switchyard/internal/api"
	"switchyard/internal/dependency"
	"switchyard/internal/events"
	"switchyard/internal/inflight"
	"switchyard/internal/pool"
	"switchyard/internal/route"
	"switchyard/internal/services"
	"switchyard/internal/shutdown"
	"switchyard/internal/uow"
	"switchyard/pkg/sequence"
)

// ShutdownStrategy quiesces route consumers on behalf of the context.
// *shutdown.Strategy is the default implementation.
type ShutdownStrategy interface {
	Shutdown(ctx context.Context, orders []route.StartupOrder, timeout time.Duration, abortAfterTimeout bool) (bool, error)
	ShutdownForced(ctx context.Context, orders []route.StartupOrder) error
	Suspend(ctx context.Context, orders []route.StartupOrder, timeout time.Duration) error
	Timeout() time.Duration
}

// Config holds the options of a Context.
type Config struct {
	// Name defaults to a generated "context<n>".
	Name string
	// AutoStartup starts the routes when the context starts.
	AutoStartup bool
	// Shutdown configures the default shutdown strategy.
	Shutdown shutdown.Config
	// ShutdownStrategy replaces the default strategy when set.
	ShutdownStrategy ShutdownStrategy

	AllowUseOriginalMessage bool
	UseBreadcrumb           bool

	// PoolCapacity bounds the producer pool across all endpoints.
	PoolCapacity int
	// MultiPoolCapacity bounds the idle producers kept per endpoint.
	MultiPoolCapacity int

	LifecycleStrategies []route.LifecycleStrategy
	// Notifier receives the context's events. A new one is created when nil.
	Notifier *events.Notifier
}

// DefaultConfig returns the default options.
func DefaultConfig() Config {
	return Config{
		AutoStartup:  true,
		PoolCapacity: pool.DefaultCapacity,
	}
}

// Context owns a set of routes and the endpoints and components they use.
type Context struct {
	name string
	cfg  Config
	lc   *services.Lifecycle

	// mu serializes route lifecycle operations. It guards suspended,
	// routeStartupOrder, defaultOrder and graph, and every write to
	// routeServices.
	mu                sync.Mutex
	suspended         map[string]*route.RouteService
	routeStartupOrder []route.StartupOrder
	defaultOrder      int
	graph             *dependency.Graph

	// routesMu lets readers see the registered routes without waiting for
	// a lifecycle operation.
	routesMu      sync.RWMutex
	routeServices map[string]*route.RouteService
	routeIDs      []string
	assignedOrder map[string]int

	setMu    sync.RWMutex
	routeSet map[string]*route.Route

	autoStartup atomic.Bool
	stopping    atomic.Bool
	vetoed      atomic.Bool

	extMu            sync.RWMutex
	strategies       []route.LifecycleStrategy
	policyFactories  []route.PolicyFactory
	startupListeners []StartupListener
	controller       RouteController

	epMu       sync.RWMutex
	components map[string]api.Component
	endpoints  map[string]api.Endpoint
	epGroup    singleflight.Group

	registry  *services.Registry
	inflight  *inflight.Repository
	notifier  *events.Notifier
	arena     *route.ErrorHandlerArena
	strategy  ShutdownStrategy
	producers *pool.ServicePool[api.Producer]
}

var _ route.Host = (*Context)(nil)

// New creates a stopped context.
func New(cfg Config) (*Context, error) {
	if cfg.Name == "" {
		cfg.Name = sequence.NextName("context")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = events.NewNotifier()
	}
	repo := inflight.New()
	registry := services.NewRegistry()

	strategy := cfg.ShutdownStrategy
	if strategy == nil {
		sc := cfg.Shutdown
		sc.Inflight = repo
		strategy = shutdown.New(sc)
	}

	producers, err := pool.New[api.Producer](createProducer, pool.Config{
		Capacity:          cfg.PoolCapacity,
		MultiPoolCapacity: cfg.MultiPoolCapacity,
		Registry:          registry,
	})
	if err != nil {
		return nil, err
	}

	c := &Context{
		name:          cfg.Name,
		cfg:           cfg,
		lc:            services.NewLifecycle("context:" + cfg.Name),
		suspended:     make(map[string]*route.RouteService),
		defaultOrder:  route.DefaultStartupOrderBase,
		graph:         dependency.New(),
		routeServices: make(map[string]*route.RouteService),
		assignedOrder: make(map[string]int),
		routeSet:      make(map[string]*route.Route),
		strategies:    append([]route.LifecycleStrategy(nil), cfg.LifecycleStrategies...),
		components:    make(map[string]api.Component),
		endpoints:     make(map[string]api.Endpoint),
		registry:      registry,
		inflight:      repo,
		notifier:      notifier,
		arena:         route.NewErrorHandlerArena(),
		strategy:      strategy,
		producers:     producers,
	}
	c.autoStartup.Store(cfg.AutoStartup)
	c.controller = NewDefaultController(c)
	return c, nil
}

func createProducer(_ context.Context, ep api.Endpoint) (api.Producer, error) {
	return ep.CreateProducer()
}

// Name returns the context name.
func (c *Context) Name() string { return c.name }

// Status returns the context status.
func (c *Context) Status() api.ServiceStatus { return c.lc.Status() }

// IsStarted reports whether the context finished starting.
func (c *Context) IsStarted() bool { return c.lc.IsStarted() }

// IsVetoed reports whether the last start was vetoed.
func (c *Context) IsVetoed() bool { return c.vetoed.Load() }

// AutoStartup reports whether routes start with the context.
func (c *Context) AutoStartup() bool { return c.autoStartup.Load() }

// SetAutoStartup controls whether routes start with the context.
func (c *Context) SetAutoStartup(v bool) { c.autoStartup.Store(v) }

// Inflight implements route.Host.
func (c *Context) Inflight() *inflight.Repository { return c.inflight }

// Notifier implements route.Host.
func (c *Context) Notifier() *events.Notifier { return c.notifier }

// ErrorHandlers implements route.Host.
func (c *Context) ErrorHandlers() *route.ErrorHandlerArena { return c.arena }

// IsStopping implements route.Host.
func (c *Context) IsStopping() bool { return c.stopping.Load() }

// UnitOfWorkConfig implements route.Host.
func (c *Context) UnitOfWorkConfig() uow.Config {
	return uow.Config{
		AllowUseOriginalMessage: c.cfg.AllowUseOriginalMessage,
		UseBreadcrumb:           c.cfg.UseBreadcrumb,
		Inflight:                c.inflight,
		Notifier:                c.notifier,
	}
}

// ShutdownStrategy returns the strategy used to quiesce routes.
func (c *Context) ShutdownStrategy() ShutdownStrategy { return c.strategy }

// Producers returns the producer pool.
func (c *Context) Producers() *pool.ServicePool[api.Producer] { return c.producers }

// Services returns the context's service registry.
func (c *Context) Services() *services.Registry { return c.registry }

// AddService registers a context-level service and starts it when the
// context is already started.
func (c *Context) AddService(ctx context.Context, svc api.Service, stopOnShutdown bool) error {
	if err := c.registry.Add(svc, stopOnShutdown); err != nil {
		return err
	}
	if c.lc.IsStarted() {
		return svc.Start(ctx)
	}
	return nil
}

// LifecycleStrategies implements route.Host.
func (c *Context) LifecycleStrategies() []route.LifecycleStrategy {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	return append([]route.LifecycleStrategy(nil), c.strategies...)
}

// AddLifecycleStrategy registers a lifecycle strategy.
func (c *Context) AddLifecycleStrategy(s route.LifecycleStrategy) {
	c.extMu.Lock()
	defer c.extMu.Unlock()
	c.strategies = append(c.strategies, s)
}

// AddRoutePolicyFactory registers a factory consulted for every route added
// afterwards.
func (c *Context) AddRoutePolicyFactory(f route.PolicyFactory) {
	c.extMu.Lock()
	defer c.extMu.Unlock()
	c.policyFactories = append(c.policyFactories, f)
}

func (c *Context) routePolicyFactories() []route.PolicyFactory {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	return append([]route.PolicyFactory(nil), c.policyFactories...)
}

// RouteController returns the controller manual route operations should go
// through.
func (c *Context) RouteController() RouteController {
	c.extMu.RLock()
	defer c.extMu.RUnlock()
	return c.controller
}

// SetRouteController installs a controller, typically one wrapping the
// default controller.
func (c *Context) SetRouteController(rc RouteController) {
	c.extMu.Lock()
	defer c.extMu.Unlock()
	c.controller = rc
}

// AddToRouteSet implements route.Host.
func (c *Context) AddToRouteSet(r *route.Route) {
	c.setMu.Lock()
	defer c.setMu.Unlock()
	c.routeSet[r.ID()] = r
}

// RemoveFromRouteSet implements route.Host.
func (c *Context) RemoveFromRouteSet(r *route.Route) {
	c.setMu.Lock()
	defer c.setMu.Unlock()
	delete(c.routeSet, r.ID())
}

// RouteSet returns the routes that are warmed up, in no particular order.
func (c *Context) RouteSet() []*route.Route {
	c.setMu.RLock()
	defer c.setMu.RUnlock()
	out := make([]*route.Route, 0, len(c.routeSet))
	for _, r := range c.routeSet {
		out = append(out, r)
	}
	return out
}
