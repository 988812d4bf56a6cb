package events

import (
	"time"
)

// EventType represents the severity of an event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Context event reasons
const (
	// ReasonContextStarting indicates the context is beginning to start.
	ReasonContextStarting EventReason = "ContextStarting"

	// ReasonContextStarted indicates the context and its auto-startup routes started.
	ReasonContextStarted EventReason = "ContextStarted"

	// ReasonContextStartupFailure indicates the context failed to start.
	ReasonContextStartupFailure EventReason = "ContextStartupFailure"

	// ReasonContextStopping indicates the context is beginning to stop.
	ReasonContextStopping EventReason = "ContextStopping"

	// ReasonContextStopped indicates the context stopped.
	ReasonContextStopped EventReason = "ContextStopped"

	// ReasonContextSuspended indicates all started routes were suspended.
	ReasonContextSuspended EventReason = "ContextSuspended"

	// ReasonContextResumed indicates the suspended routes were resumed.
	ReasonContextResumed EventReason = "ContextResumed"

	// ReasonContextResumeFailure indicates resuming the context failed.
	ReasonContextResumeFailure EventReason = "ContextResumeFailure"
)

// Route event reasons
const (
	// ReasonRouteAdded indicates a route was registered with the context.
	ReasonRouteAdded EventReason = "RouteAdded"

	// ReasonRouteRemoved indicates a route was removed from the context.
	ReasonRouteRemoved EventReason = "RouteRemoved"

	// ReasonRouteStarted indicates a route started consuming.
	ReasonRouteStarted EventReason = "RouteStarted"

	// ReasonRouteStopped indicates a route stopped.
	ReasonRouteStopped EventReason = "RouteStopped"

	// ReasonRouteSuspended indicates a route was suspended.
	ReasonRouteSuspended EventReason = "RouteSuspended"

	// ReasonRouteResumed indicates a route was resumed.
	ReasonRouteResumed EventReason = "RouteResumed"

	// ReasonRouteRestarting indicates the supervising controller is about to
	// retry starting a route.
	ReasonRouteRestarting EventReason = "RouteRestarting"

	// ReasonRouteRestartingFailure indicates a supervised restart attempt failed.
	// Exhausted is set on the event when no further attempts will be made.
	ReasonRouteRestartingFailure EventReason = "RouteRestartingFailure"
)

// Service and exchange event reasons
const (
	// ReasonServiceStopFailure indicates a service failed to stop. The failure
	// was logged and otherwise ignored.
	ReasonServiceStopFailure EventReason = "ServiceStopFailure"

	// ReasonExchangeCreated indicates a unit of work was opened for an exchange.
	ReasonExchangeCreated EventReason = "ExchangeCreated"

	// ReasonExchangeCompleted indicates an exchange completed successfully.
	ReasonExchangeCompleted EventReason = "ExchangeCompleted"

	// ReasonExchangeFailed indicates an exchange completed with a failure.
	ReasonExchangeFailed EventReason = "ExchangeFailed"
)

// Event is a single lifecycle or exchange notification.
type Event struct {
	Type       EventType
	Reason     EventReason
	RouteID    string
	ExchangeID string
	Message    string
	Err        error
	// Attempt is the restart attempt number for restarting events.
	Attempt int
	// Exhausted is set on a restarting failure after the last attempt.
	Exhausted bool
	// Duration is the exchange duration on completion events.
	Duration  time.Duration
	Timestamp time.Time
}

// IsWarning reports whether the event signals a problem.
func (e Event) IsWarning() bool {
	return e.Type == EventTypeWarning
}
