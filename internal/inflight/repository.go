// Package inflight tracks the exchanges currently being processed.
package inflight

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"switchyard/internal/api"
	"switchyard/internal/exchange"
	"switchyard/pkg/logging"
)

// Entry is a snapshot of one inflight exchange.
type Entry struct {
	Exchange *exchange.Exchange
	// Duration is the time since the exchange was created.
	Duration time.Duration
	// Elapsed is the time spent at the current node.
	Elapsed     time.Duration
	NodeID      string
	FromRouteID string
	AtRouteID   string
}

// Info converts the entry to its serializable form.
func (e Entry) Info() api.InflightInfo {
	return api.InflightInfo{
		ExchangeID:  e.Exchange.ID(),
		FromRouteID: e.FromRouteID,
		AtRouteID:   e.AtRouteID,
		NodeID:      e.NodeID,
		Duration:    e.Duration,
		Elapsed:     e.Elapsed,
	}
}

// Repository tracks the exchanges currently being processed, globally and
// per route. It is safe for concurrent use without any lifecycle lock.
type Repository struct {
	inflight   cmap.ConcurrentMap[string, *exchange.Exchange]
	routeCount cmap.ConcurrentMap[string, *atomic.Int64]
	now        func() time.Time
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		inflight:   cmap.New[*exchange.Exchange](),
		routeCount: cmap.New[*atomic.Int64](),
		now:        time.Now,
	}
}

// Start implements api.Service.
func (r *Repository) Start(context.Context) error {
	return nil
}

// Stop clears the repository, reporting exchanges that never completed.
func (r *Repository) Stop(context.Context) error {
	if n := r.inflight.Count(); n > 0 {
		logging.Warn("Inflight", "Shutting down while there are still %d inflight exchanges", n)
	}
	r.inflight.Clear()
	r.routeCount.Clear()
	return nil
}

// Add registers ex as inflight.
func (r *Repository) Add(ex *exchange.Exchange) {
	r.inflight.Set(ex.ID(), ex)
}

// Remove deregisters ex.
func (r *Repository) Remove(ex *exchange.Exchange) {
	r.inflight.Remove(ex.ID())
}

// AddToRoute counts ex against routeID. Unknown routes are ignored.
func (r *Repository) AddToRoute(ex *exchange.Exchange, routeID string) {
	if c, ok := r.routeCount.Get(routeID); ok {
		c.Add(1)
	}
}

// RemoveFromRoute stops counting ex against routeID.
func (r *Repository) RemoveFromRoute(ex *exchange.Exchange, routeID string) {
	if c, ok := r.routeCount.Get(routeID); ok {
		c.Add(-1)
	}
}

// AddRoute starts tracking routeID. Adding a known route keeps its count.
func (r *Repository) AddRoute(routeID string) {
	r.routeCount.SetIfAbsent(routeID, new(atomic.Int64))
}

// RemoveRoute stops tracking routeID.
func (r *Repository) RemoveRoute(routeID string) {
	r.routeCount.Remove(routeID)
}

// Size returns the number of inflight exchanges.
func (r *Repository) Size() int {
	return r.inflight.Count()
}

// RouteSize returns the number of exchanges inflight in routeID.
func (r *Repository) RouteSize(routeID string) int {
	if c, ok := r.routeCount.Get(routeID); ok {
		return int(c.Load())
	}
	return 0
}

// Browse returns up to limit entries, optionally restricted to exchanges
// that came from routeID. A limit of zero or less means no limit. When
// sortByLongestDuration is set, the oldest exchanges come first.
func (r *Repository) Browse(routeID string, limit int, sortByLongestDuration bool) []Entry {
	now := r.now()
	var entries []Entry
	for item := range r.inflight.IterBuffered() {
		ex := item.Val
		if routeID != "" && ex.FromRouteID() != routeID {
			continue
		}
		entries = append(entries, r.entryOf(ex, now))
	}

	if sortByLongestDuration {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Duration > entries[j].Duration
		})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Oldest returns the longest running exchange from routeID, or from any
// route when routeID is empty.
func (r *Repository) Oldest(routeID string) (Entry, bool) {
	entries := r.Browse(routeID, 1, true)
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

func (r *Repository) entryOf(ex *exchange.Exchange, now time.Time) Entry {
	e := Entry{
		Exchange:    ex,
		Duration:    now.Sub(ex.Created()),
		FromRouteID: ex.FromRouteID(),
	}
	if h, ok := ex.LastHistory(); ok {
		e.NodeID = h.NodeID
		e.AtRouteID = h.RouteID
		e.Elapsed = now.Sub(h.At)
	} else {
		e.Elapsed = e.Duration
	}
	if u := ex.UnitOfWork(); u != nil {
		if id := u.RouteID(); id != "" {
			e.AtRouteID = id
		}
	}
	return e
}
