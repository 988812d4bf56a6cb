// Package events defines the lifecycle and exchange events emitted by the
// routing engine and the Notifier that delivers them.
//
// Listeners are invoked synchronously in registration order and are used by
// collaborators that must observe every event, such as metrics. Channel
// subscribers are fed without blocking; a full subscriber misses events.
package events
