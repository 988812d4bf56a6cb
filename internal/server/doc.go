// Package server provides the admin HTTP API of a switchyard context.
//
// The router is built with chi and exposes:
//
//	GET  /api/routes                 every route with its status
//	GET  /api/routes/{id}            one route
//	POST /api/routes/{id}/{action}   start, stop, suspend or resume a route
//	GET  /api/inflight               inflight exchanges (?route=, ?limit=, ?sort=duration)
//	GET  /metrics                    Prometheus metrics
//	GET  /live, /ready               liveness and readiness checks
//
// Route operations go through the context's route controller, so routes
// managed by a supervising controller are handled the same way as routes
// started from the CLI.
package server
