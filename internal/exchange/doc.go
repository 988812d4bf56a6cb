// Package exchange holds the data-plane types that flow through routes: the
// Exchange, its Message, the message history used for inflight inspection and
// the small UnitOfWork and Synchronization contracts processors rely on.
//
// Exchanges are safe for concurrent use; processors on different goroutines
// may read and write headers and properties of the same exchange.
package exchange
