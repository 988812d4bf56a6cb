package shutdown_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"switchyard/internal/exchange"
	"switchyard/internal/route"
	"switchyard/internal/route/routetest"
	"switchyard/internal/shutdown"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	rec    *routetest.Recorder
	host   *routetest.Host
	orders []route.StartupOrder
	eps    map[string]*routetest.Endpoint
}

type routeDef struct {
	id          string
	order       int
	suspendable bool
}

func newFixture(t *testing.T, defs ...routeDef) *fixture {
	t.Helper()
	f := &fixture{rec: routetest.NewRecorder(), host: routetest.NewHost(), eps: map[string]*routetest.Endpoint{}}
	ctx := context.Background()
	for _, s := range defs {
		ep := routetest.NewEndpoint("memory:"+s.id, f.rec)
		ep.Suspendable = s.suspendable
		r, err := route.New(f.host, route.Definition{ID: s.id}, ep)
		require.NoError(t, err)
		rs := route.NewService(f.host, r)
		require.NoError(t, rs.Start(ctx))
		require.NoError(t, rs.Input().Start(ctx))
		f.orders = append(f.orders, route.StartupOrder{Order: s.order, Route: r, Service: rs})
		f.eps[s.id] = ep
	}
	f.rec.Reset()
	return f
}

func (f *fixture) consumer(id string) *routetest.Consumer {
	return f.eps[id].LastConsumer()
}

func (f *fixture) strategy(cfg shutdown.Config) *shutdown.Strategy {
	cfg.Inflight = f.host.InflightRepo
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return shutdown.New(cfg)
}

func TestShutdown_SuspendsThenStops(t *testing.T) {
	f := newFixture(t, routeDef{id: "a", order: 1, suspendable: true}, routeDef{id: "b", order: 2})
	s := f.strategy(shutdown.Config{})

	completed, err := s.Shutdown(context.Background(), f.orders, time.Second, false)
	require.NoError(t, err)
	assert.True(t, completed)

	assert.Equal(t, []string{"consumer-stop:b", "consumer-suspend:a", "consumer-stop:a"}, f.rec.Steps())
	assert.False(t, f.consumer("a").IsStarted())
	assert.False(t, f.consumer("b").IsStarted())
}

func TestShutdown_ReverseOrderByDefault(t *testing.T) {
	f := newFixture(t, routeDef{id: "b", order: 2}, routeDef{id: "a", order: 1}, routeDef{id: "c", order: 3})
	s := f.strategy(shutdown.Config{})

	require.NoError(t, s.ShutdownForced(context.Background(), f.orders))

	assert.Equal(t, []string{"consumer-stop:c", "consumer-stop:b", "consumer-stop:a"}, f.rec.Steps())
}

func TestShutdown_RoutesInOrder(t *testing.T) {
	f := newFixture(t, routeDef{id: "b", order: 2}, routeDef{id: "a", order: 1}, routeDef{id: "c", order: 3})
	s := f.strategy(shutdown.Config{ShutdownRoutesInOrder: true})

	require.NoError(t, s.ShutdownForced(context.Background(), f.orders))

	assert.Equal(t, []string{"consumer-stop:a", "consumer-stop:b", "consumer-stop:c"}, f.rec.Steps())
}

func TestShutdown_WaitsForInflight(t *testing.T) {
	f := newFixture(t, routeDef{id: "a", order: 1, suspendable: true})
	s := f.strategy(shutdown.Config{})

	ex := exchange.New(exchange.NewMessage("x"))
	f.host.InflightRepo.AddToRoute(ex, "a")
	go func() {
		time.Sleep(30 * time.Millisecond)
		f.host.InflightRepo.RemoveFromRoute(ex, "a")
	}()

	start := time.Now()
	completed, err := s.Shutdown(context.Background(), f.orders, time.Second, false)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.False(t, f.consumer("a").IsStarted())
}

func TestShutdown_AbortAfterTimeoutResumes(t *testing.T) {
	f := newFixture(t, routeDef{id: "a", order: 1, suspendable: true})
	s := f.strategy(shutdown.Config{})

	ex := exchange.New(exchange.NewMessage("x"))
	f.host.InflightRepo.AddToRoute(ex, "a")
	defer f.host.InflightRepo.RemoveFromRoute(ex, "a")

	completed, err := s.Shutdown(context.Background(), f.orders, 30*time.Millisecond, true)
	require.NoError(t, err)
	assert.False(t, completed)

	c := f.consumer("a")
	assert.True(t, c.IsStarted())
	assert.False(t, c.IsSuspended())
	assert.Equal(t, []string{"consumer-suspend:a", "consumer-resume:a"}, f.rec.Steps())
}

func TestShutdown_ShutdownNowOnTimeout(t *testing.T) {
	f := newFixture(t, routeDef{id: "a", order: 1, suspendable: true})
	s := f.strategy(shutdown.Config{ShutdownNowOnTimeout: true, SuppressLoggingOnTimeout: true})

	ex := exchange.New(exchange.NewMessage("x"))
	f.host.InflightRepo.AddToRoute(ex, "a")
	defer f.host.InflightRepo.RemoveFromRoute(ex, "a")

	completed, err := s.Shutdown(context.Background(), f.orders, 20*time.Millisecond, false)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.False(t, f.consumer("a").IsStarted())
}

func TestSuspend_LeavesSuspendableConsumersSuspended(t *testing.T) {
	f := newFixture(t, routeDef{id: "a", order: 1, suspendable: true}, routeDef{id: "b", order: 2})
	s := f.strategy(shutdown.Config{})

	require.NoError(t, s.Suspend(context.Background(), f.orders, time.Second))

	assert.True(t, f.consumer("a").IsSuspended())
	assert.True(t, f.consumer("a").IsStarted())
	assert.False(t, f.consumer("b").IsStarted())
}

func TestShutdown_EmptyAndDefaults(t *testing.T) {
	s := shutdown.New(shutdown.Config{})
	assert.Equal(t, shutdown.DefaultTimeout, s.Timeout())

	completed, err := s.Shutdown(context.Background(), nil, 0, true)
	require.NoError(t, err)
	assert.True(t, completed)
}
