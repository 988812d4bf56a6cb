package api

import "time"

// ServiceStatus is the observable lifecycle status of a service or route.
type ServiceStatus string

const (
	StatusInitialized ServiceStatus = "Initialized"
	StatusStarting    ServiceStatus = "Starting"
	StatusStarted     ServiceStatus = "Started"
	StatusStopping    ServiceStatus = "Stopping"
	StatusStopped     ServiceStatus = "Stopped"
	StatusSuspending  ServiceStatus = "Suspending"
	StatusSuspended   ServiceStatus = "Suspended"
)

// IsStartable reports whether a service in this status may be started.
func (s ServiceStatus) IsStartable() bool {
	return s == StatusInitialized || s == StatusStopped || s == StatusSuspended
}

// IsStoppable reports whether a service in this status may be stopped.
func (s ServiceStatus) IsStoppable() bool {
	return s == StatusStarted || s == StatusSuspended
}

// IsSuspendable reports whether a service in this status may be suspended.
func (s ServiceStatus) IsSuspendable() bool {
	return s == StatusStarted
}

// IsStarted reports whether the status is Started.
func (s ServiceStatus) IsStarted() bool { return s == StatusStarted }

// IsStopped reports whether the status is Stopped or Initialized.
func (s ServiceStatus) IsStopped() bool { return s == StatusStopped || s == StatusInitialized }

// IsSuspended reports whether the status is Suspended.
func (s ServiceStatus) IsSuspended() bool { return s == StatusSuspended }

// RouteInfo is the read-only view of a route returned to inspection tools.
type RouteInfo struct {
	ID           string          `json:"id" yaml:"id"`
	EndpointURI  string          `json:"endpointUri" yaml:"endpointUri"`
	Description  string          `json:"description,omitempty" yaml:"description,omitempty"`
	Status       ServiceStatus   `json:"status" yaml:"status"`
	StartupOrder int             `json:"startupOrder" yaml:"startupOrder"`
	AutoStartup  bool            `json:"autoStartup" yaml:"autoStartup"`
	Supervised   bool            `json:"supervised" yaml:"supervised"`
	Inflight     int             `json:"inflight" yaml:"inflight"`
	Uptime       time.Duration   `json:"uptime" yaml:"uptime"`
	LastError    *RouteErrorInfo `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// RouteErrorInfo is the serializable form of a RouteError.
type RouteErrorInfo struct {
	Phase     RoutePhase `json:"phase" yaml:"phase"`
	Message   string     `json:"message" yaml:"message"`
	Unhealthy bool       `json:"unhealthy" yaml:"unhealthy"`
}

// InflightInfo describes one inflight exchange.
type InflightInfo struct {
	ExchangeID  string        `json:"exchangeId" yaml:"exchangeId"`
	FromRouteID string        `json:"fromRouteId" yaml:"fromRouteId"`
	AtRouteID   string        `json:"atRouteId,omitempty" yaml:"atRouteId,omitempty"`
	NodeID      string        `json:"nodeId,omitempty" yaml:"nodeId,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
}
