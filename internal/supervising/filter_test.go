package supervising_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/route"
	"switchyard/internal/route/routetest"
	"switchyard/internal/supervising"
)

func newRoute(t *testing.T, id string, autoStartup bool) *route.Route {
	t.Helper()
	r, err := route.New(routetest.NewHost(), route.Definition{ID: id, AutoStartup: &autoStartup},
		routetest.NewEndpoint("memory:"+id, nil))
	require.NoError(t, err)
	return r
}

func TestPatternFilter(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		id      string
		want    bool
	}{
		{name: "no patterns", id: "orders", want: true},
		{name: "included", include: []string{"order*"}, id: "orders", want: true},
		{name: "not included", include: []string{"order*"}, id: "billing", want: false},
		{name: "excluded", exclude: []string{"*-test"}, id: "orders-test", want: false},
		{name: "exclude wins", include: []string{"orders*"}, exclude: []string{"orders-test"}, id: "orders-test", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := supervising.PatternFilter(tt.include, tt.exclude)
			require.NoError(t, err)
			res := f(newRoute(t, tt.id, true))
			assert.Equal(t, tt.want, res.Supervised)
			if !tt.want {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestPatternFilter_InvalidPattern(t *testing.T) {
	_, err := supervising.PatternFilter([]string{"[a-"}, nil)
	assert.Error(t, err)
}

func TestChain_FirstRejectionWins(t *testing.T) {
	reject := func(reason string) supervising.Filter {
		return func(*route.Route) supervising.FilterResult {
			return supervising.FilterResult{Reason: reason}
		}
	}
	chain := supervising.Chain(supervising.AutoStartupFilter, reject("first"), reject("second"))

	res := chain(newRoute(t, "a", true))
	assert.False(t, res.Supervised)
	assert.Equal(t, "first", res.Reason)

	res = chain(newRoute(t, "b", false))
	assert.Equal(t, "autoStartup=false", res.Reason)

	assert.True(t, supervising.Chain()(newRoute(t, "c", true)).Supervised)
}
