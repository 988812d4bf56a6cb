package api

import (
	"errors"
	"fmt"
)

// NotFoundError represents a resource not found error with contextual information.
// It is returned whenever a route, endpoint or component lookup fails.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "route", "endpoint", "component")
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found
	ResourceName string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	if err := ctrl.StartRoute(ctx, "missing"); api.IsNotFound(err) {
//	    return http.StatusNotFound
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// NewRouteNotFoundError creates a route not found error.
func NewRouteNotFoundError(routeID string) *NotFoundError {
	return NewNotFoundError("route", routeID)
}

// FailedToStartRouteError reports that a route could not be warmed up or
// have its consumer started. It carries the route id and a human readable
// description of the route.
type FailedToStartRouteError struct {
	RouteID     string
	Description string
	Err         error
}

func (e *FailedToStartRouteError) Error() string {
	msg := fmt.Sprintf("failed to start route %s", e.RouteID)
	if e.Description != "" {
		msg += fmt.Sprintf(" (%s)", e.Description)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FailedToStartRouteError) Unwrap() error {
	return e.Err
}

// NewFailedToStartRouteError wraps err as a start failure of routeID.
func NewFailedToStartRouteError(routeID, description string, err error) *FailedToStartRouteError {
	return &FailedToStartRouteError{RouteID: routeID, Description: description, Err: err}
}

// IsFailedToStartRoute checks if err is or wraps a FailedToStartRouteError.
func IsFailedToStartRoute(err error) bool {
	var e *FailedToStartRouteError
	return errors.As(err, &e)
}

// StartupOrderClashError reports two different routes sharing the same
// startup order within one start batch, or a candidate route clashing with
// an already started one. It is fatal for the whole batch.
type StartupOrderClashError struct {
	Order         int
	RouteID       string
	OtherRouteID  string
	OtherEndpoint string
}

func (e *StartupOrderClashError) Error() string {
	return fmt.Sprintf("failed to start route %s because of startup order %d clashing with route %s (from %s); routes must have unique startup order values",
		e.RouteID, e.Order, e.OtherRouteID, e.OtherEndpoint)
}

// IsStartupOrderClash checks if err is or wraps a StartupOrderClashError.
func IsStartupOrderClash(err error) bool {
	var e *StartupOrderClashError
	return errors.As(err, &e)
}

// MultipleConsumersError reports a second consumer on an endpoint that only
// supports a single one.
type MultipleConsumersError struct {
	RouteID     string
	EndpointURI string
}

func (e *MultipleConsumersError) Error() string {
	return fmt.Sprintf("failed to start route %s: multiple consumers for the same endpoint %s are not allowed", e.RouteID, e.EndpointURI)
}

// IsMultipleConsumers checks if err is or wraps a MultipleConsumersError.
func IsMultipleConsumers(err error) bool {
	var e *MultipleConsumersError
	return errors.As(err, &e)
}

// VetoError is returned by a lifecycle strategy to prevent the context from
// starting. It is not a failure: the context stops quietly unless it is
// configured to rethrow the veto.
type VetoError struct {
	Reason string
	// Rethrow makes the context return the veto from Start.
	Rethrow bool
}

func (e *VetoError) Error() string {
	if e.Reason == "" {
		return "context start vetoed"
	}
	return "context start vetoed: " + e.Reason
}

// IsVeto checks if err is or wraps a VetoError.
func IsVeto(err error) bool {
	var e *VetoError
	return errors.As(err, &e)
}

// ResumeFailedError reports that resuming the context failed.
type ResumeFailedError struct {
	Err error
}

func (e *ResumeFailedError) Error() string {
	return "failed to resume context: " + e.Err.Error()
}

func (e *ResumeFailedError) Unwrap() error {
	return e.Err
}

// RoutePhase tags the lifecycle operation a route error happened in.
type RoutePhase string

const (
	PhaseStart    RoutePhase = "START"
	PhaseStop     RoutePhase = "STOP"
	PhaseSuspend  RoutePhase = "SUSPEND"
	PhaseResume   RoutePhase = "RESUME"
	PhaseShutdown RoutePhase = "SHUTDOWN"
	PhaseRemove   RoutePhase = "REMOVE"
)

// RouteError is the last error recorded against a route.
type RouteError struct {
	Phase     RoutePhase
	Err       error
	Unhealthy bool
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Info returns the serializable form of the error, or nil for a nil error.
func (e *RouteError) Info() *RouteErrorInfo {
	if e == nil {
		return nil
	}
	return &RouteErrorInfo{Phase: e.Phase, Message: e.Err.Error(), Unhealthy: e.Unhealthy}
}
