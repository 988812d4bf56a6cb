package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
	"switchyard/internal/components/memory"
	"switchyard/internal/engine"
	"switchyard/internal/exchange"
	"switchyard/internal/metrics"
	"switchyard/internal/route"
	"switchyard/internal/server"
	"switchyard/internal/shutdown"
)

type fakeSupervisor map[string]bool

func (f fakeSupervisor) IsSupervised(id string) bool { return f[id] }

type fixture struct {
	c       *engine.Context
	ts      *httptest.Server
	release chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Shutdown = shutdown.Config{Timeout: time.Second, PollInterval: 5 * time.Millisecond}
	c, err := engine.New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.AddComponent(memory.Scheme, memory.NewComponent(memory.Options{})))

	f := &fixture{c: c, release: make(chan struct{})}
	ctx := context.Background()
	_, err = c.AddRoute(ctx, route.Definition{
		ID:          "orders",
		From:        "memory:orders",
		Description: "order intake",
		Processor: api.ProcessorFunc(func(context.Context, *exchange.Exchange) error {
			<-f.release
			return nil
		}),
	})
	require.NoError(t, err)
	off := false
	_, err = c.AddRoute(ctx, route.Definition{
		ID:          "audit",
		From:        "memory:audit",
		AutoStartup: &off,
		Processor:   api.ProcessorFunc(func(context.Context, *exchange.Exchange) error { return nil }),
	})
	require.NoError(t, err)

	srv := server.New(server.Config{
		Engine:     c,
		Supervisor: fakeSupervisor{"orders": true},
		Metrics:    metrics.New(),
	})
	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.ts.Close()
		require.NoError(t, c.Stop(context.Background()))
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func (f *fixture) route(t *testing.T, method, path string, want int) api.RouteInfo {
	t.Helper()
	status, body := f.do(t, method, path)
	require.Equal(t, want, status, string(body))
	var info api.RouteInfo
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func TestServer_ListRoutes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(context.Background()))

	status, body := f.do(t, http.MethodGet, "/api/routes")
	require.Equal(t, http.StatusOK, status)
	var infos []api.RouteInfo
	require.NoError(t, json.Unmarshal(body, &infos))
	require.Len(t, infos, 2)

	assert.Equal(t, "orders", infos[0].ID)
	assert.Equal(t, "memory:orders", infos[0].EndpointURI)
	assert.Equal(t, "order intake", infos[0].Description)
	assert.Equal(t, api.StatusStarted, infos[0].Status)
	assert.True(t, infos[0].Supervised)

	assert.Equal(t, "audit", infos[1].ID)
	assert.False(t, infos[1].AutoStartup)
	assert.False(t, infos[1].Supervised)
	assert.NotEqual(t, api.StatusStarted, infos[1].Status)
}

func TestServer_GetRoute(t *testing.T) {
	f := newFixture(t)

	info := f.route(t, http.MethodGet, "/api/routes/orders", http.StatusOK)
	assert.Equal(t, "orders", info.ID)

	status, body := f.do(t, http.MethodGet, "/api/routes/missing")
	assert.Equal(t, http.StatusNotFound, status)
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Contains(t, resp.Error, "missing")
}

func TestServer_RouteActions(t *testing.T) {
	f := newFixture(t)
	close(f.release)
	require.NoError(t, f.c.Start(context.Background()))

	info := f.route(t, http.MethodPost, "/api/routes/audit/start", http.StatusOK)
	assert.Equal(t, api.StatusStarted, info.Status)

	info = f.route(t, http.MethodPost, "/api/routes/audit/suspend", http.StatusOK)
	assert.Equal(t, api.StatusSuspended, info.Status)

	info = f.route(t, http.MethodPost, "/api/routes/audit/resume", http.StatusOK)
	assert.Equal(t, api.StatusStarted, info.Status)

	info = f.route(t, http.MethodPost, "/api/routes/audit/stop", http.StatusOK)
	assert.Equal(t, api.StatusStopped, info.Status)

	status, _ := f.do(t, http.MethodPost, "/api/routes/audit/restart")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/api/routes/missing/start")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodGet, "/api/routes/audit/start")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestServer_Inflight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))

	ep, err := f.c.Endpoint(ctx, "memory:orders")
	require.NoError(t, err)
	p, err := f.c.Producers().Acquire(ctx, ep)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- p.Process(ctx, exchange.New(exchange.NewMessage("order-1")))
	}()
	require.Eventually(t, func() bool { return f.c.Inflight().Size() == 1 }, 2*time.Second, time.Millisecond)

	status, body := f.do(t, http.MethodGet, "/api/inflight?route=orders&sort=duration&limit=5")
	require.Equal(t, http.StatusOK, status)
	var entries []api.InflightInfo
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "orders", entries[0].FromRouteID)
	assert.NotEmpty(t, entries[0].ExchangeID)

	status, body = f.do(t, http.MethodGet, "/api/inflight?route=audit")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))

	status, _ = f.do(t, http.MethodGet, "/api/inflight?limit=-1")
	assert.Equal(t, http.StatusBadRequest, status)

	close(f.release)
	require.NoError(t, <-done)
	f.c.Producers().Release(ctx, ep, p)
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodGet, "/live")
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	require.NoError(t, f.c.Start(context.Background()))
	status, _ = f.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, status)

	f.c.SetLastError("orders", &api.RouteError{Phase: api.PhaseStart, Err: assert.AnError, Unhealthy: true})
	status, body := f.do(t, http.MethodGet, "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "orders")
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(context.Background()))

	status, body := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.Contains(string(body), "switchyard_healthcheck_status"))
}

func TestServer_StartStop(t *testing.T) {
	cfg := engine.DefaultConfig()
	c, err := engine.New(cfg)
	require.NoError(t, err)

	srv := server.New(server.Config{Address: "127.0.0.1:0", Engine: c})
	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	require.NoError(t, srv.Start(ctx))

	resp, err := http.Get("http://" + srv.Addr() + "/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(stopCtx))
	require.NoError(t, srv.Stop(stopCtx))
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}
