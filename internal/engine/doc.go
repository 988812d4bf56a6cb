// Package engine implements the context lifecycle engine: it owns the
// routes, components and endpoints of one integration context and drives
// their startup, suspension, resumption and shutdown.
//
// # Startup
//
// Routes are started in batches. Every route of a batch gets a startup
// order, explicit or assigned from a counter starting at 1000, and two
// different routes sharing an order fail the whole batch. All routes of a
// batch are warmed up in ascending order before any consumer starts, so a
// message arriving on an early consumer never reaches a route that is not
// ready. Consumers on endpoints that only allow a single consumer are
// checked progressively, in batch order.
//
// # Shutdown
//
// Stopping the context forces the shutdown of every route, those that failed
// to start included, in reverse startup order. The route services are kept
// so the same context can be started again.
//
// # Concurrency
//
// Route lifecycle operations are serialized on a single lock per context.
// The data plane (inflight tracking, pools, exchanges) never takes it.
// Event listeners are notified while the lock may be held and must not call
// back into the context synchronously.
package engine
