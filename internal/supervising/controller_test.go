package supervising_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
	"switchyard/internal/engine"
	"switchyard/internal/events"
	"switchyard/internal/route"
	"switchyard/internal/route/routetest"
	"switchyard/internal/shutdown"
	"switchyard/internal/supervising"
)

const wait = 2 * time.Second

type fixture struct {
	ctx context.Context
	c   *engine.Context

	restarting atomic.Int32
	failures   atomic.Int32
	exhausted  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Shutdown = shutdown.Config{Timeout: time.Second, PollInterval: 5 * time.Millisecond}
	c, err := engine.New(cfg)
	require.NoError(t, err)

	f := &fixture{ctx: context.Background(), c: c}
	c.Notifier().AddListener(events.ListenerFunc(func(e events.Event) {
		switch e.Reason {
		case events.ReasonRouteRestarting:
			f.restarting.Add(1)
		case events.ReasonRouteRestartingFailure:
			if e.Exhausted {
				f.exhausted.Add(1)
			} else {
				f.failures.Add(1)
			}
		}
	}))
	t.Cleanup(func() { require.NoError(t, c.Stop(context.Background())) })
	return f
}

func (f *fixture) endpoint(t *testing.T, uri string) *routetest.Endpoint {
	t.Helper()
	ep := routetest.NewEndpoint(uri, nil)
	require.NoError(t, f.c.AddEndpoint(f.ctx, ep))
	return ep
}

func (f *fixture) add(t *testing.T, def route.Definition) {
	t.Helper()
	_, err := f.c.AddRoute(f.ctx, def)
	require.NoError(t, err)
}

func (f *fixture) started(id string) func() bool {
	return func() bool {
		s, _ := f.c.RouteStatus(id)
		return s == api.StatusStarted
	}
}

func fastBackOff(attempts int) supervising.BackOffConfig {
	return supervising.BackOffConfig{Delay: 5 * time.Millisecond, Multiplier: 1, MaxAttempts: attempts}
}

func TestController_StartsRoutesOnceContextStarted(t *testing.T) {
	f := newFixture(t)
	f.endpoint(t, "memory:a")
	f.endpoint(t, "memory:b")
	f.endpoint(t, "memory:c")
	f.add(t, route.Definition{ID: "a", From: "memory:a"})
	f.add(t, route.Definition{ID: "b", From: "memory:b", StartupOrder: 2})

	ctl, err := supervising.Install(f.c, supervising.DefaultConfig())
	require.NoError(t, err)
	f.add(t, route.Definition{ID: "c", From: "memory:c", StartupOrder: 1})

	assert.False(t, f.c.AutoStartup())
	assert.Same(t, ctl, f.c.RouteController())
	assert.True(t, ctl.IsSupervising())
	assert.Equal(t, []string{"c", "b", "a"}, ctl.SupervisedRoutes())

	require.NoError(t, f.c.Start(f.ctx))
	for _, id := range []string{"a", "b", "c"} {
		require.Eventually(t, f.started(id), wait, time.Millisecond, id)
	}
	assert.Zero(t, f.restarting.Load())
}

func TestController_InstallRejectsStartedContext(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(f.ctx))
	_, err := supervising.Install(f.c, supervising.DefaultConfig())
	assert.Error(t, err)
}

func TestController_ExhaustedRouteIsNoLongerSupervised(t *testing.T) {
	f := newFixture(t)
	f.endpoint(t, "memory:ok")
	bad := f.endpoint(t, "memory:bad")
	bad.FailConsumerStart.Store(true)
	f.add(t, route.Definition{ID: "ok", From: "memory:ok"})
	f.add(t, route.Definition{ID: "bad", From: "memory:bad"})

	cfg := supervising.DefaultConfig()
	cfg.BackOff = fastBackOff(3)
	ctl, err := supervising.Install(f.c, cfg)
	require.NoError(t, err)
	require.NoError(t, f.c.Start(f.ctx))

	require.Eventually(t, f.started("ok"), wait, time.Millisecond)
	require.Eventually(t, func() bool {
		last := f.c.LastError("bad")
		return last != nil && last.Unhealthy
	}, wait, time.Millisecond)

	assert.EqualValues(t, 1, f.exhausted.Load())
	assert.False(t, ctl.IsSupervised("bad"))
	assert.True(t, ctl.IsSupervised("ok"))
	assert.Contains(t, ctl.Exhausted(), "bad")
	assert.ErrorIs(t, ctl.Exhausted()["bad"], routetest.ErrInjected)
	assert.EqualValues(t, 3, f.restarting.Load())
	assert.EqualValues(t, 3, f.failures.Load())
	assert.Empty(t, ctl.Restarting())
	assert.Zero(t, ctl.PendingTasks())

	last := f.c.LastError("bad")
	require.NotNil(t, last)
	assert.Equal(t, api.PhaseStart, last.Phase)
	assert.True(t, last.Unhealthy)

	// Nothing is scheduled after exhaustion.
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 3, f.restarting.Load())
	assert.Zero(t, ctl.PendingTasks())
	status, _ := f.c.RouteStatus("bad")
	assert.NotEqual(t, api.StatusStarted, status)

	// A manual start that succeeds supervises the route again.
	bad.FailConsumerStart.Store(false)
	require.NoError(t, ctl.StartRoute(f.ctx, "bad"))
	assert.True(t, ctl.IsSupervised("bad"))
	assert.Empty(t, ctl.Exhausted())
}

func TestController_RestartsUntilRouteStarts(t *testing.T) {
	f := newFixture(t)
	ep := f.endpoint(t, "memory:flaky")
	ep.FailConsumerStart.Store(true)
	f.add(t, route.Definition{ID: "flaky", From: "memory:flaky"})

	cfg := supervising.DefaultConfig()
	cfg.BackOff = fastBackOff(0)
	ctl, err := supervising.Install(f.c, cfg)
	require.NoError(t, err)
	require.NoError(t, f.c.Start(f.ctx))

	require.Eventually(t, func() bool { return f.restarting.Load() >= 2 }, wait, time.Millisecond)
	assert.True(t, ctl.IsRestarting("flaky"))

	ep.FailConsumerStart.Store(false)
	require.Eventually(t, f.started("flaky"), wait, time.Millisecond)
	require.Eventually(t, func() bool { return !ctl.IsRestarting("flaky") }, wait, time.Millisecond)
	assert.True(t, ctl.IsSupervised("flaky"))
	assert.Zero(t, f.exhausted.Load())
}

func TestController_ManualOperationCancelsRestart(t *testing.T) {
	f := newFixture(t)
	ep := f.endpoint(t, "memory:bad")
	ep.FailConsumerStart.Store(true)
	f.add(t, route.Definition{ID: "bad", From: "memory:bad"})

	cfg := supervising.DefaultConfig()
	cfg.BackOff = supervising.BackOffConfig{Delay: time.Hour, Multiplier: 1}
	ctl, err := supervising.Install(f.c, cfg)
	require.NoError(t, err)
	require.NoError(t, f.c.Start(f.ctx))

	require.Eventually(t, func() bool { return ctl.IsRestarting("bad") }, wait, time.Millisecond)
	require.Len(t, ctl.Restarting(), 1)
	assert.Equal(t, supervising.TaskActive, ctl.Restarting()[0].Status)
	assert.Equal(t, 1, ctl.PendingTasks())

	require.NoError(t, f.c.RouteController().StopRoute(f.ctx, "bad"))
	assert.False(t, ctl.IsRestarting("bad"))
	assert.Zero(t, ctl.PendingTasks())
	assert.True(t, ctl.IsSupervised("bad"))
}

func TestController_PerRouteBackOff(t *testing.T) {
	f := newFixture(t)
	f.endpoint(t, "memory:slow").FailConsumerStart.Store(true)
	f.endpoint(t, "memory:fast").FailConsumerStart.Store(true)
	f.add(t, route.Definition{ID: "slow", From: "memory:slow"})
	f.add(t, route.Definition{ID: "fast", From: "memory:fast"})

	cfg := supervising.DefaultConfig()
	cfg.BackOff = supervising.BackOffConfig{Delay: time.Hour, Multiplier: 1}
	cfg.RouteBackOffs = map[string]supervising.BackOffConfig{
		"fast": {Delay: 5 * time.Millisecond, MaxAttempts: 1},
	}
	ctl, err := supervising.Install(f.c, cfg)
	require.NoError(t, err)
	require.NoError(t, f.c.Start(f.ctx))

	require.Eventually(t, func() bool { return len(ctl.Exhausted()) == 1 }, wait, time.Millisecond)
	assert.Contains(t, ctl.Exhausted(), "fast")
	assert.True(t, ctl.IsRestarting("slow"))
}

func TestController_Filters(t *testing.T) {
	f := newFixture(t)
	f.endpoint(t, "memory:keep")
	f.endpoint(t, "memory:skip")
	f.endpoint(t, "memory:manual")
	f.add(t, route.Definition{ID: "keep", From: "memory:keep"})
	f.add(t, route.Definition{ID: "skip-me", From: "memory:skip"})
	manual := false
	f.add(t, route.Definition{ID: "manual", From: "memory:manual", AutoStartup: &manual})

	cfg := supervising.DefaultConfig()
	cfg.ExcludeRoutes = []string{"skip-*"}
	ctl, err := supervising.Install(f.c, cfg)
	require.NoError(t, err)
	require.NoError(t, f.c.Start(f.ctx))

	require.Eventually(t, f.started("keep"), wait, time.Millisecond)
	require.Eventually(t, f.started("skip-me"), wait, time.Millisecond)
	assert.True(t, ctl.IsSupervised("keep"))
	assert.False(t, ctl.IsSupervised("skip-me"))
	assert.False(t, ctl.IsSupervised("manual"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, f.started("manual")())
}

func TestController_InitialDelay(t *testing.T) {
	f := newFixture(t)
	f.endpoint(t, "memory:a")
	f.add(t, route.Definition{ID: "a", From: "memory:a"})

	cfg := supervising.DefaultConfig()
	cfg.InitialDelay = 100 * time.Millisecond
	_, err := supervising.Install(f.c, cfg)
	require.NoError(t, err)

	require.NoError(t, f.c.Start(f.ctx))
	assert.False(t, f.started("a")())
	require.Eventually(t, f.started("a"), wait, time.Millisecond)
}

func TestController_RoutesAddedAfterStart(t *testing.T) {
	f := newFixture(t)
	ctl, err := supervising.Install(f.c, supervising.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, f.c.Start(f.ctx))

	f.endpoint(t, "memory:late")
	f.add(t, route.Definition{ID: "late", From: "memory:late"})
	require.Eventually(t, f.started("late"), wait, time.Millisecond)
	assert.True(t, ctl.IsSupervised("late"))

	require.NoError(t, ctl.StopRoute(f.ctx, "late"))
	removed, err := f.c.RemoveRoute(f.ctx, "late")
	require.NoError(t, err)
	require.True(t, removed)
	assert.False(t, ctl.IsSupervised("late"))
}

func TestController_RestartedContextStartsRoutesAgain(t *testing.T) {
	f := newFixture(t)
	f.endpoint(t, "memory:a")
	f.add(t, route.Definition{ID: "a", From: "memory:a"})
	ctl, err := supervising.Install(f.c, supervising.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, f.c.Start(f.ctx))
	require.Eventually(t, f.started("a"), wait, time.Millisecond)
	require.NoError(t, f.c.Stop(f.ctx))
	assert.True(t, ctl.IsSupervised("a"))

	require.NoError(t, f.c.Start(f.ctx))
	require.Eventually(t, f.started("a"), wait, time.Millisecond)
}
