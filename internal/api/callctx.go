package api

import "context"

type callKey int

const (
	startingRoutesKey callKey = iota
	setupRouteKey
)

// WithStartingRoutes marks ctx as belonging to a batch start of routes.
// Services started from such a context may defer work that needs every
// route to be up, for example by registering a startup listener.
func WithStartingRoutes(ctx context.Context) context.Context {
	return context.WithValue(ctx, startingRoutesKey, true)
}

// IsStartingRoutes reports whether ctx belongs to a batch start of routes.
func IsStartingRoutes(ctx context.Context) bool {
	v, _ := ctx.Value(startingRoutesKey).(bool)
	return v
}

// WithSetupRoute records the id of the route being set up.
func WithSetupRoute(ctx context.Context, routeID string) context.Context {
	return context.WithValue(ctx, setupRouteKey, routeID)
}

// SetupRouteFrom returns the id of the route being set up, if any.
func SetupRouteFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(setupRouteKey).(string)
	return id, ok && id != ""
}
