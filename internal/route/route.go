package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/exchange"
	"switchyard/internal/services"
	"switchyard/internal/uow"
)

// Definition describes a route before it is bound to a context.
type Definition struct {
	ID          string
	From        string
	Description string
	// StartupOrder controls when the route's consumer starts relative to
	// other routes. Zero means unset; the context assigns a default.
	StartupOrder int
	// AutoStartup defaults to true when nil.
	AutoStartup *bool
	// Processor is the pipeline exchanges run through after the consumer.
	Processor api.Processor
	// Services are additional child services owned by the route, such as
	// producers used by the pipeline.
	Services []api.Service
	// ErrorHandler is an id in the host's error handler arena, or zero.
	ErrorHandler int
	Policies     []Policy
	Properties   map[string]any
}

// Route is a pipeline bound to a single input endpoint.
type Route struct {
	lc *services.Lifecycle

	id           string
	description  string
	endpoint     api.Endpoint
	pipeline     api.Processor
	startupOrder int
	autoStartup  bool
	errorHandler int
	extra        []api.Service
	host         Host

	mu         sync.RWMutex
	consumer   api.Consumer
	services   []api.Service
	policies   []Policy
	properties map[string]any
	lastError  *api.RouteError
	startedAt  time.Time
}

// New binds def to endpoint. The consumer is created lazily on warm-up.
func New(host Host, def Definition, endpoint api.Endpoint) (*Route, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("route id is required")
	}
	if endpoint == nil {
		return nil, fmt.Errorf("route %s has no endpoint", def.ID)
	}
	pipeline := def.Processor
	if pipeline == nil {
		pipeline = api.ProcessorFunc(func(context.Context, *exchange.Exchange) error { return nil })
	}
	autoStartup := true
	if def.AutoStartup != nil {
		autoStartup = *def.AutoStartup
	}
	props := make(map[string]any, len(def.Properties))
	for k, v := range def.Properties {
		props[k] = v
	}
	return &Route{
		lc:           services.NewLifecycle("route:" + def.ID),
		id:           def.ID,
		description:  def.Description,
		endpoint:     endpoint,
		pipeline:     pipeline,
		startupOrder: def.StartupOrder,
		autoStartup:  autoStartup,
		errorHandler: def.ErrorHandler,
		extra:        append([]api.Service(nil), def.Services...),
		host:         host,
		policies:     append([]Policy(nil), def.Policies...),
		properties:   props,
	}, nil
}

func (r *Route) ID() string { return r.id }
func (r *Route) Endpoint() api.Endpoint { return r.endpoint }
func (r *Route) AutoStartup() bool { return r.autoStartup }
func (r *Route) ErrorHandler() int { return r.errorHandler }

// Description returns the configured description, or one derived from the
// input endpoint.
func (r *Route) Description() string {
	if r.description != "" {
		return r.description
	}
	return "from " + r.endpoint.URI()
}

// Endpoints returns the input endpoint followed by the endpoints of the
// route's declared services, such as producers, each once.
func (r *Route) Endpoints() []api.Endpoint {
	declared := r.extra
	if svc, ok := r.pipeline.(api.Service); ok {
		declared = append([]api.Service{svc}, declared...)
	}
	out := []api.Endpoint{r.endpoint}
	seen := map[string]struct{}{r.endpoint.URI(): {}}
	for _, svc := range services.FlattenChildren(declared...) {
		e, ok := svc.(interface{ Endpoint() api.Endpoint })
		if !ok || e.Endpoint() == nil {
			continue
		}
		if _, dup := seen[e.Endpoint().URI()]; dup {
			continue
		}
		seen[e.Endpoint().URI()] = struct{}{}
		out = append(out, e.Endpoint())
	}
	return out
}

// StartupOrder returns the explicit startup order, or zero when unset.
func (r *Route) StartupOrder() int { return r.startupOrder }

// Consumer returns the consumer created on warm-up, or nil.
func (r *Route) Consumer() api.Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.consumer
}

// SupportsSuspension reports whether the consumer can be suspended.
func (r *Route) SupportsSuspension() bool {
	return api.SuspendsConsumer(r.Consumer())
}

// Services returns the child services gathered on warm-up.
func (r *Route) Services() []api.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]api.Service(nil), r.services...)
}

// Policies returns the route policies.
func (r *Route) Policies() []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Policy(nil), r.policies...)
}

// AddPolicy appends a route policy.
func (r *Route) AddPolicy(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append(r.policies, p)
}

// Property returns a route property.
func (r *Route) Property(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.properties[key]
	return v, ok
}

// SetProperty sets a route property.
func (r *Route) SetProperty(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.properties[key] = value
}

// LastError returns the error recorded by the last lifecycle operation.
func (r *Route) LastError() *api.RouteError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// SetLastError records err; nil clears it.
func (r *Route) SetLastError(err *api.RouteError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = err
}

// Uptime returns how long the route has been started, or zero.
func (r *Route) Uptime() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.startedAt.IsZero() {
		return 0
	}
	return time.Since(r.startedAt)
}

// Start marks the route as started. Consumers are started by the context.
func (r *Route) Start(ctx context.Context) error {
	return r.lc.Start(ctx, func(context.Context) error {
		r.mu.Lock()
		r.startedAt = time.Now()
		r.mu.Unlock()
		return nil
	})
}

// Stop marks the route as stopped.
func (r *Route) Stop(ctx context.Context) error {
	return r.lc.Stop(ctx, r.clearUptime)
}

// Shutdown stops the route for good.
func (r *Route) Shutdown(ctx context.Context) error {
	return r.lc.Shutdown(ctx, r.clearUptime, nil)
}

func (r *Route) clearUptime(context.Context) error {
	r.mu.Lock()
	r.startedAt = time.Time{}
	r.mu.Unlock()
	return nil
}

// initializeServices creates the consumer and rebuilds the child service
// list: the consumer first, then the pipeline and the declared services.
func (r *Route) initializeServices() error {
	consumer, err := r.endpoint.CreateConsumer(api.ProcessorFunc(r.process))
	if err != nil {
		return fmt.Errorf("creating consumer for %s: %w", r.endpoint.URI(), err)
	}
	if aware, ok := consumer.(api.RouteIDAware); ok {
		aware.SetRouteID(r.id)
	}

	list := []api.Service{consumer}
	if svc, ok := r.pipeline.(api.Service); ok {
		list = append(list, svc)
	}
	list = append(list, r.extra...)

	r.mu.Lock()
	r.consumer = consumer
	r.services = list
	r.mu.Unlock()
	return nil
}

func (r *Route) clearServices() {
	r.mu.Lock()
	r.consumer = nil
	r.services = nil
	r.mu.Unlock()
}

// process runs ex through the route inside a unit of work and counts it as
// inflight for this route.
func (r *Route) process(ctx context.Context, ex *exchange.Exchange) error {
	ex.SetFromRouteID(r.id)

	u := ex.UnitOfWork()
	owned := false
	if u == nil {
		created := uow.New(ctx, ex, r.host.UnitOfWorkConfig())
		ctx = created.Context()
		u = created
		owned = true
	}

	inflight := r.host.Inflight()
	u.PushRoute(r.id)
	inflight.AddToRoute(ex, r.id)
	defer func() {
		inflight.RemoveFromRoute(ex, r.id)
		u.PopRoute()
		if owned {
			u.Done()
		}
	}()

	ex.AddHistory(r.id, r.id)
	if err := r.pipeline.Process(ctx, ex); err != nil {
		ex.SetErr(err)
		return err
	}
	return nil
}

// String implements fmt.Stringer.
func (r *Route) String() string {
	return fmt.Sprintf("Route[%s -> %s]", r.id, r.endpoint.URI())
}
