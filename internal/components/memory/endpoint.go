package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"switchyard/internal/api"
	"switchyard/internal/exchange"
	"switchyard/internal/services"
)

// ErrNoConsumers is returned when an exchange is sent to an endpoint no
// route is consuming from.
var ErrNoConsumers = errors.New("no consumers available")

// Endpoint is a named in-memory channel between producers and the
// consumers of one or more routes.
type Endpoint struct {
	lc   *services.Lifecycle
	uri  string
	opts Options

	mu        sync.RWMutex
	consumers []*Consumer
	next      atomic.Uint64
}

var (
	_ api.Endpoint                 = (*Endpoint)(nil)
	_ api.MultipleConsumersSupport = (*Endpoint)(nil)
)

// NewEndpoint creates an endpoint outside of a component, mostly for tests.
func NewEndpoint(uri string, opts Options) *Endpoint {
	return &Endpoint{lc: services.NewLifecycle("endpoint:" + uri), uri: uri, opts: opts}
}

func (e *Endpoint) URI() string { return e.uri }

// Options returns the endpoint's options.
func (e *Endpoint) Options() Options { return e.opts }

func (e *Endpoint) Start(ctx context.Context) error { return e.lc.Start(ctx, nil) }

func (e *Endpoint) Stop(ctx context.Context) error { return e.lc.Stop(ctx, nil) }

func (e *Endpoint) SupportsMultipleConsumers() bool { return e.opts.MultipleConsumers }

// IsSingletonProducer is true: producers hold no state of their own.
func (e *Endpoint) IsSingletonProducer() bool { return true }

func (e *Endpoint) CreateConsumer(p api.Processor) (api.Consumer, error) {
	if p == nil {
		return nil, fmt.Errorf("consumer of %s needs a processor", e.uri)
	}
	return newConsumer(e, p), nil
}

func (e *Endpoint) CreateProducer() (api.Producer, error) {
	return &Producer{lc: services.NewLifecycle("producer:" + e.uri), endpoint: e}, nil
}

// ConsumerCount returns the number of consumers currently accepting
// exchanges.
func (e *Endpoint) ConsumerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.consumers)
}

// Send delivers ex to the endpoint's consumers. With multiple consumers
// each one gets its own copy and the errors are joined; otherwise the
// consumers take turns.
func (e *Endpoint) Send(ctx context.Context, ex *exchange.Exchange) error {
	e.mu.RLock()
	targets := append([]*Consumer(nil), e.consumers...)
	e.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("sending to %s: %w", e.uri, ErrNoConsumers)
	}
	if !e.opts.MultipleConsumers {
		i := e.next.Add(1) - 1
		return targets[i%uint64(len(targets))].deliver(ctx, ex)
	}

	copies := make([]*exchange.Exchange, len(targets))
	copies[0] = ex
	for i := 1; i < len(targets); i++ {
		copies[i] = ex.Copy()
	}
	var errs []error
	for i, c := range targets {
		if err := c.deliver(ctx, copies[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Endpoint) register(c *Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.consumers {
		if existing == c {
			return
		}
	}
	e.consumers = append(e.consumers, c)
}

func (e *Endpoint) unregister(c *Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.consumers {
		if existing == c {
			e.consumers = append(e.consumers[:i], e.consumers[i+1:]...)
			return
		}
	}
}

// Producer sends exchanges to a memory endpoint.
type Producer struct {
	lc       *services.Lifecycle
	endpoint *Endpoint
}

func (p *Producer) Endpoint() api.Endpoint { return p.endpoint }

func (p *Producer) Start(ctx context.Context) error { return p.lc.Start(ctx, nil) }

func (p *Producer) Stop(ctx context.Context) error { return p.lc.Stop(ctx, nil) }

func (p *Producer) Process(ctx context.Context, ex *exchange.Exchange) error {
	if !p.lc.IsStarted() {
		return fmt.Errorf("producer for %s is not started", p.endpoint.uri)
	}
	return p.endpoint.Send(ctx, ex)
}
