package api

import (
	"context"

	"switchyard/internal/exchange"
)

// Service is anything with a start/stop lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ShutdownableService can be retired permanently after being stopped.
type ShutdownableService interface {
	Service
	Shutdown(ctx context.Context) error
}

// SuspendableService can be paused and resumed without losing its state.
type SuspendableService interface {
	Service
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
	IsSuspended() bool
}

// Suspendable marks a consumer that supports real suspension. Consumers
// that do not implement it are stopped instead of suspended.
type Suspendable interface {
	SupportsSuspension() bool
}

// StatefulService reports its lifecycle status.
type StatefulService interface {
	Service
	Status() ServiceStatus
}

// ServiceWithChildren exposes the services it owns.
type ServiceWithChildren interface {
	ChildServices() []Service
}

// RouteIDAware receives the id of the route it is part of.
type RouteIDAware interface {
	SetRouteID(id string)
}

// Processor handles an exchange.
type Processor interface {
	Process(ctx context.Context, ex *exchange.Exchange) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, ex *exchange.Exchange) error

// Process calls f(ctx, ex).
func (f ProcessorFunc) Process(ctx context.Context, ex *exchange.Exchange) error {
	return f(ctx, ex)
}

// SuspendsConsumer reports whether svc supports real suspension.
func SuspendsConsumer(svc any) bool {
	if _, ok := svc.(SuspendableService); !ok {
		return false
	}
	s, ok := svc.(Suspendable)
	return ok && s.SupportsSuspension()
}
