package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.Empty(t, g.nodes)
}

func TestAddNode_CopiesInput(t *testing.T) {
	g := New()
	deps := []NodeID{"endpoint:a"}
	g.AddNode(Node{ID: "route:r", Kind: KindRoute, DependsOn: deps})
	deps[0] = "mutated"

	assert.Equal(t, []NodeID{"endpoint:a"}, g.Dependencies("route:r"))
	assert.Nil(t, g.Dependencies("missing"))
}

func TestAddRoute_CollapsesDuplicates(t *testing.T) {
	g := New()
	g.AddRoute("r1", "memory:a", "log:out", "memory:a")

	assert.Equal(t, []NodeID{EndpointNode("memory:a"), EndpointNode("log:out")}, g.Dependencies(RouteNode("r1")))
	require.NotNil(t, g.Get(EndpointNode("log:out")))
	assert.Equal(t, KindEndpoint, g.Get(EndpointNode("log:out")).Kind)
}

func TestOrphans(t *testing.T) {
	tests := []struct {
		name     string
		routes   map[string][]string
		remove   string
		expected []string
	}{
		{
			name:     "single route owns everything",
			routes:   map[string][]string{"r1": {"memory:a", "log:out"}},
			remove:   "r1",
			expected: []string{"memory:a", "log:out"},
		},
		{
			name: "shared producer endpoint is kept",
			routes: map[string][]string{
				"r1": {"memory:a", "log:out"},
				"r2": {"memory:b", "log:out"},
			},
			remove:   "r1",
			expected: []string{"memory:a"},
		},
		{
			name:     "unknown route",
			routes:   map[string][]string{"r1": {"memory:a"}},
			remove:   "nope",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			for id, uris := range tt.routes {
				g.AddRoute(id, uris...)
			}
			assert.Equal(t, tt.expected, g.Orphans(tt.remove))
		})
	}
}

func TestRemoveRoute(t *testing.T) {
	g := New()
	g.AddRoute("r1", "memory:a", "log:out")
	g.AddRoute("r2", "memory:b", "log:out")

	g.RemoveRoute("r1")

	assert.Nil(t, g.Get(RouteNode("r1")))
	assert.Nil(t, g.Get(EndpointNode("memory:a")))
	assert.NotNil(t, g.Get(EndpointNode("log:out")))
	assert.Equal(t, []NodeID{RouteNode("r2")}, g.Dependents(EndpointNode("log:out")))
}
