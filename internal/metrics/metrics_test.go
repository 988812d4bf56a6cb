package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
	"switchyard/internal/events"
)

type fakeRoutes []api.RouteInfo

func (f fakeRoutes) RouteInfos() []api.RouteInfo { return f }

type fakeInflight int

func (f fakeInflight) Size() int { return int(f) }

func TestMetrics_Notify(t *testing.T) {
	m := New()
	for _, e := range []events.Event{
		{Reason: events.ReasonContextStarted, Message: "ctx"},
		{Reason: events.ReasonRouteStarted, RouteID: "a"},
		{Reason: events.ReasonRouteStarted, RouteID: "a"},
		{Reason: events.ReasonRouteRestarting, RouteID: "b", Attempt: 1},
		{Reason: events.ReasonRouteRestartingFailure, RouteID: "b", Attempt: 1},
		{Reason: events.ReasonRouteRestartingFailure, RouteID: "b", Attempt: 2, Exhausted: true},
		{Reason: events.ReasonExchangeCreated, RouteID: "a"},
		{Reason: events.ReasonExchangeCompleted, RouteID: "a", Duration: 10 * time.Millisecond},
		{Reason: events.ReasonExchangeFailed, RouteID: "a", Duration: time.Millisecond},
	} {
		m.Notify(e)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.contextEvents.WithLabelValues("ContextStarted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.routeEvents.WithLabelValues("a", "RouteStarted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restarts.WithLabelValues("b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restartFailures.WithLabelValues("b", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restartFailures.WithLabelValues("b", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("a", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("a", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.exchangeDuration))
}

func TestMetrics_Watch(t *testing.T) {
	m := New()
	routes := fakeRoutes{
		{ID: "a", Status: api.StatusStarted, Inflight: 2, Uptime: time.Second},
		{ID: "b", Status: api.StatusStopped},
	}
	require.NoError(t, m.Watch(routes, fakeInflight(2)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `switchyard_route_status{route="a",status="Started"} 1`)
	assert.Contains(t, body, `switchyard_route_status{route="b",status="Stopped"} 1`)
	assert.Contains(t, body, `switchyard_route_inflight_exchanges{route="a"} 2`)
	assert.Contains(t, body, "switchyard_inflight_exchanges 2")
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
