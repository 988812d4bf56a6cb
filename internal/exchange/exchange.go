package exchange

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// BreadcrumbHeader carries the correlation id that follows a message across routes.
const BreadcrumbHeader = "SwitchyardBreadcrumbId"

// Synchronization is notified once when the unit of work of an exchange completes.
type Synchronization interface {
	OnComplete(ex *Exchange)
	OnFailure(ex *Exchange)
}

// UnitOfWork is the per-exchange scope as seen by processors.
type UnitOfWork interface {
	PushRoute(routeID string)
	PopRoute() string
	RouteID() string
	AddSynchronization(s Synchronization)
	Done()
}

// HistoryEntry records one processing step of an exchange.
type HistoryEntry struct {
	RouteID string
	NodeID  string
	At      time.Time
}

// Exchange is a message in flight together with its processing state.
type Exchange struct {
	mu sync.RWMutex

	id          string
	created     time.Time
	fromRouteID string
	in          *Message
	properties  map[string]any
	history     []HistoryEntry
	err         error
	uow         UnitOfWork
}

// New creates an exchange carrying the given message.
// A nil message is replaced by an empty one.
func New(in *Message) *Exchange {
	if in == nil {
		in = NewMessage(nil)
	}
	return &Exchange{
		id:         uuid.NewString(),
		created:    time.Now(),
		in:         in,
		properties: make(map[string]any),
	}
}

// ID returns the unique exchange id.
func (e *Exchange) ID() string {
	return e.id
}

// Created returns when the exchange was created.
func (e *Exchange) Created() time.Time {
	return e.created
}

// In returns the current message.
func (e *Exchange) In() *Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.in
}

// SetIn replaces the current message.
func (e *Exchange) SetIn(m *Message) {
	e.mu.Lock()
	e.in = m
	e.mu.Unlock()
}

// FromRouteID returns the id of the route that first consumed the exchange.
func (e *Exchange) FromRouteID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fromRouteID
}

// SetFromRouteID records the consuming route once; later calls are ignored.
func (e *Exchange) SetFromRouteID(routeID string) {
	e.mu.Lock()
	if e.fromRouteID == "" {
		e.fromRouteID = routeID
	}
	e.mu.Unlock()
}

// Property returns an exchange property.
func (e *Exchange) Property(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.properties[key]
	return v, ok
}

// SetProperty sets an exchange property.
func (e *Exchange) SetProperty(key string, value any) {
	e.mu.Lock()
	e.properties[key] = value
	e.mu.Unlock()
}

// Err returns the failure recorded on the exchange, if any.
func (e *Exchange) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// SetErr records a failure. A nil error clears it.
func (e *Exchange) SetErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// Failed reports whether processing failed.
func (e *Exchange) Failed() bool {
	return e.Err() != nil
}

// UnitOfWork returns the unit of work the exchange is processed in.
func (e *Exchange) UnitOfWork() UnitOfWork {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.uow
}

// SetUnitOfWork attaches the unit of work.
func (e *Exchange) SetUnitOfWork(u UnitOfWork) {
	e.mu.Lock()
	e.uow = u
	e.mu.Unlock()
}

// AddHistory appends a processing step.
func (e *Exchange) AddHistory(routeID, nodeID string) {
	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{RouteID: routeID, NodeID: nodeID, At: time.Now()})
	e.mu.Unlock()
}

// History returns a copy of the recorded processing steps.
func (e *Exchange) History() []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

// LastHistory returns the most recent processing step.
func (e *Exchange) LastHistory() (HistoryEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.history) == 0 {
		return HistoryEntry{}, false
	}
	return e.history[len(e.history)-1], true
}

// Copy returns a new exchange with a copied message and properties.
// The copy gets a fresh id and no unit of work.
func (e *Exchange) Copy() *Exchange {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c := New(e.in.Copy())
	for k, v := range e.properties {
		c.properties[k] = v
	}
	c.fromRouteID = e.fromRouteID
	return c
}
