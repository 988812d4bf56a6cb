// Package sequence hands out monotonically increasing numbers per name.
//
// The engine uses it for default route ids ("route1", "route2", ...) and
// context names. The process-wide generator can be reset explicitly, which
// tests use to get predictable names:
//
//	sequence.Reset("route", 0)
//	id := sequence.NextName("route") // "route1"
package sequence

import (
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Generator holds one counter per name. The zero value is not usable; use
// New.
type Generator struct {
	counters cmap.ConcurrentMap[string, *atomic.Int64]
}

// New creates a generator without counters.
func New() *Generator {
	return &Generator{counters: cmap.New[*atomic.Int64]()}
}

func (g *Generator) counter(name string) *atomic.Int64 {
	g.counters.SetIfAbsent(name, new(atomic.Int64))
	c, _ := g.counters.Get(name)
	return c
}

// Next increments the counter of name and returns the new value. The first
// value is 1.
func (g *Generator) Next(name string) int64 {
	return g.counter(name).Add(1)
}

// NextName returns name followed by its next value.
func (g *Generator) NextName(name string) string {
	return name + strconv.FormatInt(g.Next(name), 10)
}

// Current returns the last value handed out for name.
func (g *Generator) Current(name string) int64 {
	return g.counter(name).Load()
}

// Reset sets the counter of name so that the next value is value+1.
func (g *Generator) Reset(name string, value int64) {
	g.counter(name).Store(value)
}

var global = New()

// Next increments the process-wide counter of name.
func Next(name string) int64 { return global.Next(name) }

// NextName returns name followed by the next process-wide value.
func NextName(name string) string { return global.NextName(name) }

// Reset sets the process-wide counter of name.
func Reset(name string, value int64) { global.Reset(name, value) }
