// Package supervising provides a route controller that starts routes on
// its own instead of letting the context start them, retrying routes that
// fail to start with a per-route back-off.
//
// The controller takes over route startup when it is installed: the
// context no longer auto-starts routes, and every route accepted by the
// filter chain is started by the controller once the context has started,
// optionally after an initial delay. A route that fails to start is handed
// to the retry manager, which retries it on a single worker until it
// starts or its back-off is exhausted. An exhausted route is no longer
// supervised and its last error is marked unhealthy.
//
// Manual operations on a supervised route cancel its pending retry first.
package supervising
