// Package routetest provides instrumented endpoints, consumers and services
// for tests of the route lifecycle. Every fake records what happened to it
// in a shared Recorder so tests can assert on ordering across routes.
package routetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/events"
	"switchyard/internal/exchange"
	"switchyard/internal/inflight"
	"switchyard/internal/route"
	"switchyard/internal/uow"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Recorder is an append-only, concurrency safe log of named steps.
type Recorder struct {
	mu    sync.Mutex
	steps []string
	at    []time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Record appends a step.
func (r *Recorder) Record(format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, fmt.Sprintf(format, args...))
	r.at = append(r.at, time.Now())
}

// Steps returns a copy of every recorded step.
func (r *Recorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

// Index returns the position of the first occurrence of step, or -1.
func (r *Recorder) Index(step string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.steps {
		if s == step {
			return i
		}
	}
	return -1
}

// Count returns how many times step was recorded.
func (r *Recorder) Count(step string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.steps {
		if s == step {
			n++
		}
	}
	return n
}

// Reset forgets every step.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = nil
	r.at = nil
}

// Endpoint is an in-memory endpoint whose consumers can be driven directly
// by tests through Send.
type Endpoint struct {
	uri string
	rec *Recorder

	// Multiple is returned by SupportsMultipleConsumers.
	Multiple bool
	// Suspendable makes created consumers support real suspension.
	Suspendable bool
	// FailStart makes the endpoint fail to start.
	FailStart atomic.Bool
	// FailConsumerStart makes every consumer fail to start.
	FailConsumerStart atomic.Bool
	// Singleton is returned by IsSingletonProducer.
	Singleton bool

	// StartCalls counts successful Start calls, Starts only the ones that
	// actually started the endpoint.
	StartCalls atomic.Int32
	Starts     atomic.Int32
	Stops      atomic.Int32
	Shutdowns  atomic.Int32

	started   atomic.Bool
	mu        sync.Mutex
	consumers []*Consumer
}

// NewEndpoint creates an endpoint recording into rec, which may be nil.
func NewEndpoint(uri string, rec *Recorder) *Endpoint {
	return &Endpoint{uri: uri, rec: rec}
}

func (e *Endpoint) URI() string { return e.uri }

// Start starts the endpoint; starting a started endpoint does nothing.
func (e *Endpoint) Start(context.Context) error {
	if e.FailStart.Load() {
		return ErrInjected
	}
	e.StartCalls.Add(1)
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	e.Starts.Add(1)
	e.rec.Record("endpoint-start:%s", e.uri)
	return nil
}

func (e *Endpoint) Stop(context.Context) error {
	if e.started.CompareAndSwap(true, false) {
		e.Stops.Add(1)
	}
	return nil
}

func (e *Endpoint) Shutdown(context.Context) error {
	e.started.Store(false)
	e.Shutdowns.Add(1)
	e.rec.Record("endpoint-shutdown:%s", e.uri)
	return nil
}

// IsStarted reports whether the endpoint is started.
func (e *Endpoint) IsStarted() bool { return e.started.Load() }

func (e *Endpoint) SupportsMultipleConsumers() bool { return e.Multiple }

func (e *Endpoint) IsSingletonProducer() bool { return e.Singleton }

// CreateConsumer creates a consumer feeding p.
func (e *Endpoint) CreateConsumer(p api.Processor) (api.Consumer, error) {
	c := &Consumer{endpoint: e, processor: p, suspendable: e.Suspendable}
	e.mu.Lock()
	e.consumers = append(e.consumers, c)
	e.mu.Unlock()
	return c, nil
}

// CreateProducer creates a producer recording every exchange it processes.
func (e *Endpoint) CreateProducer() (api.Producer, error) {
	return &Producer{endpoint: e}, nil
}

// Consumers returns every consumer created so far.
func (e *Endpoint) Consumers() []*Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Consumer(nil), e.consumers...)
}

// LastConsumer returns the most recently created consumer, or nil.
func (e *Endpoint) LastConsumer() *Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.consumers) == 0 {
		return nil
	}
	return e.consumers[len(e.consumers)-1]
}

// Consumer is created by Endpoint.
type Consumer struct {
	endpoint    *Endpoint
	processor   api.Processor
	suspendable bool
	routeID     string

	started   atomic.Bool
	suspended atomic.Bool
	Starts    atomic.Int32
	Stops     atomic.Int32
}

func (c *Consumer) Endpoint() api.Endpoint { return c.endpoint }
func (c *Consumer) SetRouteID(id string) { c.routeID = id }
func (c *Consumer) RouteID() string { return c.routeID }
func (c *Consumer) IsStarted() bool { return c.started.Load() }
func (c *Consumer) IsSuspended() bool { return c.suspended.Load() }
func (c *Consumer) SupportsSuspension() bool { return c.suspendable }

func (c *Consumer) Start(context.Context) error {
	if c.endpoint.FailConsumerStart.Load() {
		return ErrInjected
	}
	c.Starts.Add(1)
	c.started.Store(true)
	c.suspended.Store(false)
	c.endpoint.rec.Record("consumer-start:%s", c.routeID)
	return nil
}

func (c *Consumer) Stop(context.Context) error {
	c.Stops.Add(1)
	c.started.Store(false)
	c.suspended.Store(false)
	c.endpoint.rec.Record("consumer-stop:%s", c.routeID)
	return nil
}

func (c *Consumer) Suspend(context.Context) error {
	c.suspended.Store(true)
	c.endpoint.rec.Record("consumer-suspend:%s", c.routeID)
	return nil
}

func (c *Consumer) Resume(context.Context) error {
	c.suspended.Store(false)
	c.endpoint.rec.Record("consumer-resume:%s", c.routeID)
	return nil
}

// Send feeds ex into the route like a real consumer would.
func (c *Consumer) Send(ctx context.Context, ex *exchange.Exchange) error {
	if !c.started.Load() || c.suspended.Load() {
		return fmt.Errorf("consumer of %s is not accepting exchanges", c.endpoint.uri)
	}
	return c.processor.Process(ctx, ex)
}

// Producer is created by Endpoint.
type Producer struct {
	endpoint *Endpoint
	Started  atomic.Bool
	Stopped  atomic.Bool
	Sent     atomic.Int32
}

func (p *Producer) Endpoint() api.Endpoint { return p.endpoint }

func (p *Producer) Start(context.Context) error {
	p.Started.Store(true)
	p.Stopped.Store(false)
	return nil
}

func (p *Producer) Stop(context.Context) error {
	p.Stopped.Store(true)
	return nil
}

func (p *Producer) Process(context.Context, *exchange.Exchange) error {
	if p.Stopped.Load() {
		return fmt.Errorf("producer for %s is stopped", p.endpoint.uri)
	}
	p.Sent.Add(1)
	return nil
}

// Service is a child service that records its start and stop. The start
// of a route's child services is the observable warm-up of the route.
type Service struct {
	Name string
	rec  *Recorder

	// Fail makes Start fail.
	Fail atomic.Bool
	// Gate, when set, blocks Start until it is closed.
	Gate chan struct{}

	Starts    atomic.Int32
	Stops     atomic.Int32
	Shutdowns atomic.Int32
}

// NewService creates a child service recording into rec.
func NewService(name string, rec *Recorder) *Service {
	return &Service{Name: name, rec: rec}
}

func (s *Service) Start(ctx context.Context) error {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.Fail.Load() {
		return ErrInjected
	}
	s.Starts.Add(1)
	s.rec.Record("warmup:%s", s.Name)
	return nil
}

func (s *Service) Stop(context.Context) error {
	s.Stops.Add(1)
	s.rec.Record("stop:%s", s.Name)
	return nil
}

func (s *Service) Shutdown(context.Context) error {
	s.Shutdowns.Add(1)
	s.rec.Record("shutdown:%s", s.Name)
	return nil
}

// Host is a standalone route.Host.
type Host struct {
	InflightRepo *inflight.Repository
	Events       *events.Notifier
	Strategies   []route.LifecycleStrategy
	Arena        *route.ErrorHandlerArena
	Stopping     atomic.Bool

	mu       sync.Mutex
	routeSet map[string]*route.Route
}

// NewHost creates a host with fresh collaborators.
func NewHost() *Host {
	return &Host{
		InflightRepo: inflight.New(),
		Events:       events.NewNotifier(),
		Arena:        route.NewErrorHandlerArena(),
		routeSet:     make(map[string]*route.Route),
	}
}

func (h *Host) Inflight() *inflight.Repository { return h.InflightRepo }
func (h *Host) Notifier() *events.Notifier { return h.Events }
func (h *Host) UnitOfWorkConfig() uow.Config {
	return uow.Config{Inflight: h.InflightRepo, Notifier: h.Events}
}
func (h *Host) LifecycleStrategies() []route.LifecycleStrategy { return h.Strategies }
func (h *Host) ErrorHandlers() *route.ErrorHandlerArena { return h.Arena }
func (h *Host) IsStopping() bool { return h.Stopping.Load() }

func (h *Host) AddToRouteSet(r *route.Route) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routeSet[r.ID()] = r
}

func (h *Host) RemoveFromRouteSet(r *route.Route) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.routeSet, r.ID())
}

// InRouteSet reports whether the route is in the host's route set.
func (h *Host) InRouteSet(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.routeSet[id]
	return ok
}
