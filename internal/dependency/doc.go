// Package dependency provides a small directed graph recording which
// endpoints each route uses.
//
// The engine consults it when a route is removed: endpoints used by no
// other route are orphaned and retired together with the route.
//
// # Core Concepts
//
// Graph: a directed graph where route nodes point at the endpoint nodes
// they use.
//
// Node: a route or an endpoint with:
//   - ID: unique identifier, see RouteNode and EndpointNode
//   - FriendlyName: the route id or endpoint URI
//   - Kind: KindRoute or KindEndpoint
//   - DependsOn: the endpoints a route uses
//
// The graph is not safe for concurrent use; the engine only touches it
// under its lifecycle lock.
package dependency
