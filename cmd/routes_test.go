package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
)

type fakeAdmin struct {
	mu    sync.Mutex
	posts []string
}

func (f *fakeAdmin) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/routes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]api.RouteInfo{
			{ID: "orders", EndpointURI: "memory:orders", Status: api.StatusStarted, StartupOrder: 1000, AutoStartup: true, Uptime: 90 * time.Second},
			{ID: "audit", EndpointURI: "memory:audit", Status: api.StatusStopped, StartupOrder: 1001,
				LastError: &api.RouteErrorInfo{Phase: api.PhaseStart, Message: "boom", Unhealthy: true}},
		})
	})
	mux.HandleFunc("POST /api/routes/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.posts = append(f.posts, r.PathValue("id")+"/"+r.PathValue("action"))
		f.mu.Unlock()
		if r.PathValue("id") != "orders" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "route " + r.PathValue("id") + " not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.RouteInfo{ID: "orders", Status: api.StatusSuspended})
	})
	return mux
}

func TestRoutesCommand(t *testing.T) {
	ts := httptest.NewServer((&fakeAdmin{}).handler())
	defer ts.Close()

	cmd := newRoutesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--endpoint", ts.URL})
	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "orders")
	assert.Contains(t, s, "memory:orders")
	assert.Contains(t, s, "Started")
	assert.Contains(t, s, "1m30s")
	assert.Contains(t, s, "START: boom")
}

func TestRoutesCommand_Unreachable(t *testing.T) {
	cmd := newRoutesCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--endpoint", "127.0.0.1:1", "--timeout", "200ms"})
	assert.Error(t, cmd.Execute())
}

func TestRouteCommand(t *testing.T) {
	admin := &fakeAdmin{}
	ts := httptest.NewServer(admin.handler())
	defer ts.Close()

	cmd := newRouteCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"suspend", "orders", "--endpoint", ts.URL})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Route orders is")
	assert.Contains(t, out.String(), "Suspended")

	cmd.SetArgs([]string{"start", "missing", "--endpoint", ts.URL})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	admin.mu.Lock()
	defer admin.mu.Unlock()
	assert.Equal(t, []string{"orders/suspend", "missing/start"}, admin.posts)
}

func TestRouteCommand_RequiresID(t *testing.T) {
	cmd := newRouteCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stop"})
	assert.Error(t, cmd.Execute())
}

func TestServeCommand_RejectsLogFormat(t *testing.T) {
	cmd := newServeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-format", "xml"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}
