// Package uow implements the per-exchange unit of work: completion
// callbacks, the original message snapshot, the route stack, breadcrumb
// propagation and reentrant transaction demarcation.
package uow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"switchyard/internal/events"
	"switchyard/internal/exchange"
	"switchyard/internal/inflight"
	"switchyard/pkg/logging"
)

const tracerName = "switchyard/uow"

// VetoableSynchronization lets a synchronization refuse to be handed over
// to another unit of work.
type VetoableSynchronization interface {
	exchange.Synchronization
	AllowHandover() bool
}

// Config holds the collaborators and options of units of work.
type Config struct {
	// AllowUseOriginalMessage keeps a copy of the incoming message.
	AllowUseOriginalMessage bool
	// UseBreadcrumb stamps exchange.BreadcrumbHeader when missing.
	UseBreadcrumb bool
	Inflight      *inflight.Repository
	Notifier      *events.Notifier
}

// UnitOfWork is the scope of one exchange. It is created when an exchange
// enters its first route and completed exactly once by Done.
type UnitOfWork struct {
	mu sync.Mutex

	cfg      Config
	ex       *exchange.Exchange
	parent   *UnitOfWork
	original *exchange.Message

	syncs        []exchange.Synchronization
	routes       []string
	transactedBy map[string]int

	ctx  context.Context
	span trace.Span

	doneOnce sync.Once
}

var _ exchange.UnitOfWork = (*UnitOfWork)(nil)

// New opens a unit of work for ex, attaches it to the exchange and registers
// the exchange as inflight.
func New(ctx context.Context, ex *exchange.Exchange, cfg Config) *UnitOfWork {
	u := newUnitOfWork(ex, cfg, nil)
	u.ctx, u.span = otel.Tracer(tracerName).Start(ctx, "exchange",
		trace.WithAttributes(
			attribute.String("exchange.id", ex.ID()),
			attribute.String("route.from", ex.FromRouteID()),
		))
	u.register()
	return u
}

func newUnitOfWork(ex *exchange.Exchange, cfg Config, parent *UnitOfWork) *UnitOfWork {
	u := &UnitOfWork{
		cfg:          cfg,
		ex:           ex,
		parent:       parent,
		transactedBy: make(map[string]int),
	}
	if cfg.AllowUseOriginalMessage {
		u.original = ex.In().Copy()
	}
	if cfg.UseBreadcrumb {
		in := ex.In()
		if in.HeaderString(exchange.BreadcrumbHeader) == "" {
			in.SetHeader(exchange.BreadcrumbHeader, ex.ID())
		}
	}
	return u
}

func (u *UnitOfWork) register() {
	u.ex.SetUnitOfWork(u)
	if u.cfg.Inflight != nil {
		u.cfg.Inflight.Add(u.ex)
	}
	u.cfg.Notifier.Emit(events.Event{
		Reason:     events.ReasonExchangeCreated,
		RouteID:    u.ex.FromRouteID(),
		ExchangeID: u.ex.ID(),
	})
}

// CreateChild opens a unit of work for a sub-exchange. The child is tracked
// as inflight on its own and keeps a reference to this unit of work for
// synchronization handover. Breadcrumbs are copied from the parent.
func (u *UnitOfWork) CreateChild(child *exchange.Exchange) *UnitOfWork {
	if u.cfg.UseBreadcrumb {
		if id := u.ex.In().HeaderString(exchange.BreadcrumbHeader); id != "" {
			child.In().SetHeader(exchange.BreadcrumbHeader, id)
		}
	}
	c := newUnitOfWork(child, u.cfg, u)
	c.ctx = u.ctx
	c.register()
	return c
}

// Parent returns the unit of work this one was created from, if any.
func (u *UnitOfWork) Parent() *UnitOfWork {
	return u.parent
}

// Exchange returns the exchange this unit of work belongs to.
func (u *UnitOfWork) Exchange() *exchange.Exchange {
	return u.ex
}

// Context returns the context carrying the unit of work span.
func (u *UnitOfWork) Context() context.Context {
	return u.ctx
}

// OriginalMessage returns the snapshot taken on creation, or nil when
// original messages are not allowed.
func (u *UnitOfWork) OriginalMessage() *exchange.Message {
	return u.original
}

// AddSynchronization appends s. Synchronizations are notified in the order
// they were added.
func (u *UnitOfWork) AddSynchronization(s exchange.Synchronization) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.syncs = append(u.syncs, s)
}

// RemoveSynchronization removes s.
func (u *UnitOfWork) RemoveSynchronization(s exchange.Synchronization) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, existing := range u.syncs {
		if existing == s {
			u.syncs = append(u.syncs[:i], u.syncs[i+1:]...)
			return
		}
	}
}

// ContainsSynchronization reports whether s is registered.
func (u *UnitOfWork) ContainsSynchronization(s exchange.Synchronization) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.syncs {
		if existing == s {
			return true
		}
	}
	return false
}

// HandoverSynchronization moves synchronizations to target. A nil filter
// accepts every synchronization. Synchronizations that veto the handover
// stay with this unit of work. It returns the number moved.
func (u *UnitOfWork) HandoverSynchronization(target exchange.UnitOfWork, filter func(exchange.Synchronization) bool) int {
	u.mu.Lock()
	var keep, move []exchange.Synchronization
	for _, s := range u.syncs {
		if filter != nil && !filter(s) {
			keep = append(keep, s)
			continue
		}
		if v, ok := s.(VetoableSynchronization); ok && !v.AllowHandover() {
			keep = append(keep, s)
			continue
		}
		move = append(move, s)
	}
	u.syncs = keep
	u.mu.Unlock()

	for _, s := range move {
		target.AddSynchronization(s)
	}
	return len(move)
}

// PushRoute records that the exchange entered routeID.
func (u *UnitOfWork) PushRoute(routeID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.routes = append(u.routes, routeID)
}

// PopRoute removes and returns the innermost route, or "" when empty.
func (u *UnitOfWork) PopRoute() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.routes) == 0 {
		return ""
	}
	id := u.routes[len(u.routes)-1]
	u.routes = u.routes[:len(u.routes)-1]
	return id
}

// RouteID returns the innermost route, or "" when empty.
func (u *UnitOfWork) RouteID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.routes) == 0 {
		return ""
	}
	return u.routes[len(u.routes)-1]
}

// RouteStackLevel returns the depth of the route stack.
func (u *UnitOfWork) RouteStackLevel() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.routes)
}

// BeginTransactedBy marks the exchange as transacted by key. Nested calls
// with the same key are counted.
func (u *UnitOfWork) BeginTransactedBy(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.transactedBy[key]++
}

// EndTransactedBy ends one level of transaction demarcation for key.
func (u *UnitOfWork) EndTransactedBy(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if n := u.transactedBy[key]; n > 1 {
		u.transactedBy[key] = n - 1
	} else {
		delete(u.transactedBy, key)
	}
}

// IsTransactedBy reports whether key currently demarcates a transaction.
func (u *UnitOfWork) IsTransactedBy(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.transactedBy[key] > 0
}

// IsTransacted reports whether any transaction is active.
func (u *UnitOfWork) IsTransacted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.transactedBy) > 0
}

// Done completes the unit of work. It notifies every synchronization, then
// removes the exchange from the inflight repository, then emits a completed
// or failed event. Calls after the first are ignored.
func (u *UnitOfWork) Done() {
	u.doneOnce.Do(u.done)
}

func (u *UnitOfWork) done() {
	failed := u.ex.Failed()

	u.mu.Lock()
	syncs := u.syncs
	u.syncs = nil
	u.mu.Unlock()

	for _, s := range syncs {
		notifySynchronization(s, u.ex, failed)
	}

	if u.cfg.Inflight != nil {
		u.cfg.Inflight.Remove(u.ex)
	}

	e := events.Event{
		Reason:     events.ReasonExchangeCompleted,
		RouteID:    u.ex.FromRouteID(),
		ExchangeID: u.ex.ID(),
		Duration:   time.Since(u.ex.Created()),
	}
	if failed {
		e.Type = events.EventTypeWarning
		e.Reason = events.ReasonExchangeFailed
		e.Err = u.ex.Err()
	}
	u.cfg.Notifier.Emit(e)

	if u.span != nil {
		if failed {
			u.span.RecordError(u.ex.Err())
			u.span.SetStatus(codes.Error, u.ex.Err().Error())
		}
		u.span.End()
	}
}

func notifySynchronization(s exchange.Synchronization, ex *exchange.Exchange, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("UnitOfWork", "Synchronization %T panicked for exchange %s: %v", s, ex.ID(), r)
		}
	}()
	if failed {
		s.OnFailure(ex)
	} else {
		s.OnComplete(ex)
	}
}

// String implements fmt.Stringer.
func (u *UnitOfWork) String() string {
	return fmt.Sprintf("UnitOfWork[exchange=%s]", u.ex.ID())
}
