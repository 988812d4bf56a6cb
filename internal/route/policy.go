package route

import (
	"context"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/inflight"
	"switchyard/internal/uow"
)

// Policy observes the lifecycle of a single route.
type Policy interface {
	OnInit(r *Route)
	OnStart(r *Route)
	OnStop(r *Route)
	OnSuspend(r *Route)
	OnResume(r *Route)
	OnRemove(r *Route)
}

// PolicySupport is an embeddable no-op Policy.
type PolicySupport struct{}

func (PolicySupport) OnInit(*Route) {}
func (PolicySupport) OnStart(*Route) {}
func (PolicySupport) OnStop(*Route) {}
func (PolicySupport) OnSuspend(*Route) {}
func (PolicySupport) OnResume(*Route) {}
func (PolicySupport) OnRemove(*Route) {}

// PolicyFactory creates a policy for a route when it is added to a context.
// Returning nil adds no policy.
type PolicyFactory interface {
	CreatePolicy(r *Route) Policy
}

// PolicyFactoryFunc adapts a function to PolicyFactory.
type PolicyFactoryFunc func(r *Route) Policy

// CreatePolicy calls f(r).
func (f PolicyFactoryFunc) CreatePolicy(r *Route) Policy { return f(r) }

// LifecycleStrategy observes services and routes being added to or removed
// from a context. OnContextStart may return an *api.VetoError to prevent
// the context from starting.
type LifecycleStrategy interface {
	OnContextStart(ctx context.Context) error
	OnContextStop(ctx context.Context)
	OnServiceAdd(svc api.Service, r *Route)
	OnServiceRemove(svc api.Service, r *Route)
	OnRoutesAdd(routes []*Route)
	OnRoutesRemove(routes []*Route)
}

// LifecycleStrategySupport is an embeddable no-op LifecycleStrategy.
type LifecycleStrategySupport struct{}

func (LifecycleStrategySupport) OnContextStart(context.Context) error { return nil }
func (LifecycleStrategySupport) OnContextStop(context.Context) {}
func (LifecycleStrategySupport) OnServiceAdd(api.Service, *Route) {}
func (LifecycleStrategySupport) OnServiceRemove(api.Service, *Route) {}
func (LifecycleStrategySupport) OnRoutesAdd([]*Route) {}
func (LifecycleStrategySupport) OnRoutesRemove([]*Route) {}

// Host is the part of a context a route service needs. It is implemented by
// the engine.
type Host interface {
	Inflight() *inflight.Repository
	Notifier() *events.Notifier
	UnitOfWorkConfig() uow.Config
	LifecycleStrategies() []LifecycleStrategy
	ErrorHandlers() *ErrorHandlerArena
	// IsStopping reports whether the whole context is shutting down.
	IsStopping() bool
	// AddToRouteSet and RemoveFromRouteSet maintain the context's set of
	// active routes.
	AddToRouteSet(r *Route)
	RemoveFromRouteSet(r *Route)
}
