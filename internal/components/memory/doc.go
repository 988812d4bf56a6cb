// Package memory provides the in-memory endpoint component.
//
// An exchange sent to a memory endpoint is handed to the consumers of the
// routes reading from it. Delivery is synchronous by default: the sender's
// goroutine runs the route. With a worker count the consumer owns a worker
// pool and the sender only waits for a free worker.
//
// URIs take the form
//
//	memory:name?workers=4&multipleConsumers=true
//
// With multipleConsumers every consumer receives a copy of each exchange;
// otherwise consumers take turns.
package memory
