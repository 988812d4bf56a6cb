// internal/dependency/graph.go
package dependency

import "sort"

// NodeID is the unique identifier for a node inside a dependency graph.
// Callers encode the kind into the id, e.g. "route:orders" or
// "endpoint:memory:orders".
type NodeID string

// NodeKind categorises nodes.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindRoute
	KindEndpoint
)

// RouteNode returns the node id of a route.
func RouteNode(routeID string) NodeID { return NodeID("route:" + routeID) }

// EndpointNode returns the node id of an endpoint URI.
func EndpointNode(uri string) NodeID { return NodeID("endpoint:" + uri) }

// Node represents a route or an endpoint together with its dependency list.
// Routes depend on every endpoint they use, the input endpoint included;
// endpoints depend on nothing.
type Node struct {
	ID           NodeID
	FriendlyName string
	Kind         NodeKind
	DependsOn    []NodeID
}

// Graph is a very small helper to answer dependency queries. It is *not*
// thread-safe by itself; callers must synchronise if they write concurrently.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	// Copy to avoid external mutations
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// AddRoute records that routeID uses the endpoints with the given URIs,
// adding endpoint nodes as needed. Duplicate URIs are collapsed.
func (g *Graph) AddRoute(routeID string, uris ...string) {
	seen := make(map[NodeID]struct{}, len(uris))
	deps := make([]NodeID, 0, len(uris))
	for _, uri := range uris {
		id := EndpointNode(uri)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		deps = append(deps, id)
		if g.Get(id) == nil {
			g.AddNode(Node{ID: id, FriendlyName: uri, Kind: KindEndpoint})
		}
	}
	g.AddNode(Node{ID: RouteNode(routeID), FriendlyName: routeID, Kind: KindRoute, DependsOn: deps})
}

// RemoveNode deletes a node. Edges pointing at it are left in place.
func (g *Graph) RemoveNode(id NodeID) {
	delete(g.nodes, id)
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		// Return a copy to avoid callers modifying internal slice.
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node, sorted. This is an O(n) walk; route graphs are small.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if dep == id {
				res = append(res, n.ID)
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Orphans returns the endpoint URIs used by routeID that no other route
// uses. The route counts itself, so an endpoint is orphaned when at most
// one route depends on it.
func (g *Graph) Orphans(routeID string) []string {
	route := g.Get(RouteNode(routeID))
	if route == nil {
		return nil
	}
	var res []string
	for _, dep := range route.DependsOn {
		if len(g.Dependents(dep)) <= 1 {
			if n := g.Get(dep); n != nil {
				res = append(res, n.FriendlyName)
			}
		}
	}
	return res
}

// RemoveRoute deletes the route node and every endpoint node that no
// remaining route depends on.
func (g *Graph) RemoveRoute(routeID string) {
	deps := g.Dependencies(RouteNode(routeID))
	g.RemoveNode(RouteNode(routeID))
	for _, dep := range deps {
		if len(g.Dependents(dep)) == 0 {
			g.RemoveNode(dep)
		}
	}
}
