package api

import (
	"context"

	"switchyard/internal/exchange"
)

// Endpoint is an addressable message source or sink.
type Endpoint interface {
	Service
	URI() string
	CreateConsumer(p Processor) (Consumer, error)
	CreateProducer() (Producer, error)
	// IsSingletonProducer reports whether one producer instance may be
	// shared by all callers.
	IsSingletonProducer() bool
}

// MultipleConsumersSupport is implemented by endpoints that state whether
// more than one route may consume from them.
type MultipleConsumersSupport interface {
	SupportsMultipleConsumers() bool
}

// AllowsMultipleConsumers reports whether ep may be consumed by several
// routes. Endpoints without the capability allow a single consumer only.
func AllowsMultipleConsumers(ep Endpoint) bool {
	m, ok := ep.(MultipleConsumersSupport)
	return ok && m.SupportsMultipleConsumers()
}

// Consumer feeds exchanges from an endpoint into a route.
type Consumer interface {
	Service
	Endpoint() Endpoint
}

// Producer sends exchanges to an endpoint.
type Producer interface {
	Service
	Endpoint() Endpoint
	Process(ctx context.Context, ex *exchange.Exchange) error
}

// Component resolves endpoints for one URI scheme.
type Component interface {
	Service
	CreateEndpoint(uri string) (Endpoint, error)
}
