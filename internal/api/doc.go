// Package api defines the contracts shared by every switchyard package.
//
// The lifecycle core never depends on concrete components. Endpoints,
// consumers, producers and plain services are described here as a closed set
// of small capability interfaces. A type opts into a capability by
// implementing the interface, and callers discover it with a type assertion:
//
//	if s, ok := svc.(api.SuspendableService); ok {
//	    return s.Suspend(ctx)
//	}
//
// # Capabilities
//
//   - Service: Start and Stop
//   - ShutdownableService: Shutdown, retiring a service for good
//   - SuspendableService: Suspend, Resume and IsSuspended
//   - Suspendable: marker that a consumer can be paused without being stopped
//   - StatefulService: reports its ServiceStatus
//   - ServiceWithChildren: exposes child services for lifecycle fan-out
//   - RouteIDAware: receives the id of the route it belongs to
//   - Endpoint: creates consumers and producers for a URI
//   - MultipleConsumersSupport: declares whether several routes may consume
//   - Component: resolves endpoint URIs for one scheme
//
// # Errors
//
// The package also owns the typed errors of the lifecycle core. All of them
// are plain Go errors which wrap their cause; use the Is* helpers or
// errors.As to inspect them.
package api
