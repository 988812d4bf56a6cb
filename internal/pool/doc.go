// Package pool provides ServicePool, a per-endpoint cache of producer or
// consumer instances.
//
// Endpoints that declare a singleton producer get a single pool: one lazily
// created instance shared by every caller. Other endpoints get a multi pool:
// a bounded queue of interchangeable instances, where an instance released
// into a full queue is stopped instead of kept.
//
// A global LRU caps the number of instances across all endpoints. Its
// eviction callback only flags the evicted instance; the owning pool stops
// it the next time it is acquired from, released to or cleaned up, so an
// instance is never stopped while the pool is handing it out.
package pool
