package route

import (
	"fmt"
	"sync"

	"switchyard/internal/api"
)

// ErrorHandlerArena stores route-scoped error handler services in handler
// sets addressed by small integer ids. Several ids may alias the same set.
// Routes bind to an id; when a route stops, the services of every set it is
// bound to are stopped after the route's other services.
type ErrorHandlerArena struct {
	mu     sync.Mutex
	slots  []*handlerSet
	ids    map[int]int
	nextID int
}

type handlerSet struct {
	services []api.Service
	routes   map[string]struct{}
}

// NewErrorHandlerArena creates an empty arena. Id zero is never assigned.
func NewErrorHandlerArena() *ErrorHandlerArena {
	return &ErrorHandlerArena{ids: make(map[int]int), nextID: 1}
}

// New creates a handler set holding svcs and returns its id.
func (a *ErrorHandlerArena) New(svcs ...api.Service) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.slots = append(a.slots, &handlerSet{
		services: append([]api.Service(nil), svcs...),
		routes:   make(map[string]struct{}),
	})
	return a.assign(len(a.slots) - 1)
}

// Alias returns a new id for the set addressed by id.
func (a *ErrorHandlerArena) Alias(id int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.ids[id]
	if !ok {
		return 0, fmt.Errorf("unknown error handler %d", id)
	}
	return a.assign(slot), nil
}

func (a *ErrorHandlerArena) assign(slot int) int {
	id := a.nextID
	a.nextID++
	a.ids[id] = slot
	return id
}

// Same reports whether two ids address the same handler set.
func (a *ErrorHandlerArena) Same(x, y int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	sx, okx := a.ids[x]
	sy, oky := a.ids[y]
	return okx && oky && sx == sy
}

// Add appends svc to the set addressed by id.
func (a *ErrorHandlerArena) Add(id int, svc api.Service) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.ids[id]
	if !ok {
		return fmt.Errorf("unknown error handler %d", id)
	}
	a.slots[slot].services = append(a.slots[slot].services, svc)
	return nil
}

// Bind records that routeID uses the set addressed by id.
func (a *ErrorHandlerArena) Bind(id int, routeID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.ids[id]
	if !ok {
		return fmt.Errorf("unknown error handler %d", id)
	}
	a.slots[slot].routes[routeID] = struct{}{}
	return nil
}

// Unbind removes routeID from every set.
func (a *ErrorHandlerArena) Unbind(routeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.slots {
		delete(s.routes, routeID)
	}
}

// Services returns the services of the set addressed by id.
func (a *ErrorHandlerArena) Services(id int) []api.Service {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.ids[id]
	if !ok {
		return nil
	}
	return append([]api.Service(nil), a.slots[slot].services...)
}

// ServicesForRoute returns the services of every set routeID is bound to,
// each set once.
func (a *ErrorHandlerArena) ServicesForRoute(routeID string) []api.Service {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []api.Service
	for _, s := range a.slots {
		if _, ok := s.routes[routeID]; ok {
			out = append(out, s.services...)
		}
	}
	return out
}
