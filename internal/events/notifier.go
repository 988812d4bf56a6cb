package events

import (
	"sync"
	"time"

	"switchyard/pkg/logging"
)

// Listener receives events synchronously on the notifying goroutine.
// It must not block.
type Listener interface {
	Notify(e Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(e Event)

// Notify calls f(e).
func (f ListenerFunc) Notify(e Event) { f(e) }

// Notifier fans events out to listeners and channel subscribers.
// A nil *Notifier is valid and drops every event.
type Notifier struct {
	mu          sync.RWMutex
	listeners   []Listener
	subscribers []chan<- Event
	now         func() time.Time
}

// NewNotifier creates a notifier without listeners.
func NewNotifier() *Notifier {
	return &Notifier{now: time.Now}
}

// AddListener registers a synchronous listener.
func (n *Notifier) AddListener(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Subscribe returns a buffered channel receiving every subsequent event.
// Slow subscribers miss events instead of blocking the notifier.
func (n *Notifier) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan Event, buffer)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, ch)
	return ch
}

// Close closes every subscriber channel.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subscribers {
		close(ch)
	}
	n.subscribers = nil
}

// Emit stamps and publishes e.
func (n *Notifier) Emit(e Event) {
	if n == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = n.now()
	}
	if e.Type == "" {
		e.Type = EventTypeNormal
	}

	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	subscribers := make([]chan<- Event, len(n.subscribers))
	copy(subscribers, n.subscribers)
	n.mu.RUnlock()

	for _, l := range listeners {
		l.Notify(e)
	}
	for _, subscriber := range subscribers {
		select {
		case subscriber <- e:
		default:
			logging.Debug("Events", "Event subscriber blocked, skipping %s event for route %s", e.Reason, e.RouteID)
		}
	}
}

// Route emits a normal route event.
func (n *Notifier) Route(reason EventReason, routeID string) {
	n.Emit(Event{Reason: reason, RouteID: routeID})
}

// RouteFailure emits a warning route event carrying err.
func (n *Notifier) RouteFailure(reason EventReason, routeID string, err error) {
	n.Emit(Event{Type: EventTypeWarning, Reason: reason, RouteID: routeID, Err: err})
}

// Context emits a normal context event.
func (n *Notifier) Context(reason EventReason, name string) {
	n.Emit(Event{Reason: reason, Message: name})
}
