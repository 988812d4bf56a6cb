package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"switchyard/internal/api"
	"switchyard/internal/components/memory"
	"switchyard/internal/engine"
	"switchyard/internal/exchange"
	"switchyard/internal/route"
	"switchyard/internal/shutdown"
)

type collector struct {
	mu     sync.Mutex
	bodies []any
	routes []string
}

func (c *collector) processor() api.Processor {
	return api.ProcessorFunc(func(_ context.Context, ex *exchange.Exchange) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.bodies = append(c.bodies, ex.In().Body())
		c.routes = append(c.routes, ex.FromRouteID())
		return nil
	})
}

func (c *collector) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.bodies...)
}

func (c *collector) fromRoutes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.routes...)
}

func newContext(t *testing.T) *engine.Context {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Shutdown = shutdown.Config{Timeout: time.Second, PollInterval: 5 * time.Millisecond}
	c, err := engine.New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.AddComponent(memory.Scheme, memory.NewComponent(memory.Options{})))
	t.Cleanup(func() { require.NoError(t, c.Stop(context.Background())) })
	return c
}

func send(t *testing.T, c *engine.Context, uri string, body any) error {
	t.Helper()
	ctx := context.Background()
	ep, err := c.Endpoint(ctx, uri)
	require.NoError(t, err)
	p, err := c.Producers().Acquire(ctx, ep)
	require.NoError(t, err)
	defer c.Producers().Release(ctx, ep, p)
	return p.Process(ctx, exchange.New(exchange.NewMessage(body)))
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri      string
		name     string
		opts     memory.Options
		wantErr  bool
		defaults memory.Options
	}{
		{uri: "memory:orders", name: "orders"},
		{uri: "memory:orders?workers=4", name: "orders", opts: memory.Options{Workers: 4}},
		{uri: "memory:events?multipleConsumers=true", name: "events", opts: memory.Options{MultipleConsumers: true}},
		{uri: "memory:events", name: "events", defaults: memory.Options{Workers: 2}, opts: memory.Options{Workers: 2}},
		{uri: "memory:events?workers=0", name: "events", defaults: memory.Options{Workers: 2}},
		{uri: "memory:orders?workers=-1", wantErr: true},
		{uri: "memory:orders?multipleConsumers=maybe", wantErr: true},
		{uri: "log:orders", wantErr: true},
		{uri: "memory:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			name, opts, err := memory.ParseURI(tt.uri, tt.defaults)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.opts, opts)
		})
	}
}

func TestComponent_SameNameSameEndpoint(t *testing.T) {
	comp := memory.NewComponent(memory.Options{})
	a, err := comp.CreateEndpoint("memory:a")
	require.NoError(t, err)
	again, err := comp.CreateEndpoint("memory:a?workers=2")
	require.NoError(t, err)
	assert.Same(t, a, again)
}

func TestEndpoint_SynchronousDelivery(t *testing.T) {
	c := newContext(t)
	col := &collector{}
	_, err := c.AddRoute(context.Background(), route.Definition{ID: "in", From: "memory:in", Processor: col.processor()})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, send(t, c, "memory:in", "hello"))
	assert.Equal(t, []any{"hello"}, col.received())
	assert.Equal(t, []string{"in"}, col.fromRoutes())
	assert.Zero(t, c.Inflight().Size())
}

func TestEndpoint_QueuedDelivery(t *testing.T) {
	c := newContext(t)
	release := make(chan struct{})
	var mu sync.Mutex
	var got []any
	_, err := c.AddRoute(context.Background(), route.Definition{
		ID:   "queued",
		From: "memory:queued?workers=2",
		Processor: api.ProcessorFunc(func(_ context.Context, ex *exchange.Exchange) error {
			<-release
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ex.In().Body())
			return nil
		}),
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, send(t, c, "memory:queued?workers=2", 1))
	require.NoError(t, send(t, c, "memory:queued?workers=2", 2))
	require.Eventually(t, func() bool { return c.Inflight().RouteSize("queued") == 2 }, 2*time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, time.Millisecond)
	assert.ElementsMatch(t, []any{1, 2}, got)
}

func TestEndpoint_NoConsumers(t *testing.T) {
	c := newContext(t)
	require.NoError(t, c.Start(context.Background()))
	err := send(t, c, "memory:nobody", "lost")
	assert.True(t, errors.Is(err, memory.ErrNoConsumers))
}

func TestEndpoint_MultipleConsumersReceiveCopies(t *testing.T) {
	c := newContext(t)
	a, b := &collector{}, &collector{}
	ctx := context.Background()
	_, err := c.AddRoute(ctx, route.Definition{ID: "a", From: "memory:fan?multipleConsumers=true", Processor: a.processor()})
	require.NoError(t, err)
	_, err = c.AddRoute(ctx, route.Definition{ID: "b", From: "memory:fan?multipleConsumers=true", Processor: b.processor()})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, send(t, c, "memory:fan?multipleConsumers=true", "event"))
	assert.Equal(t, []any{"event"}, a.received())
	assert.Equal(t, []any{"event"}, b.received())
}

func TestEndpoint_SingleConsumerRejectsSecondRoute(t *testing.T) {
	c := newContext(t)
	ctx := context.Background()
	_, err := c.AddRoute(ctx, route.Definition{ID: "a", From: "memory:single"})
	require.NoError(t, err)
	_, err = c.AddRoute(ctx, route.Definition{ID: "b", From: "memory:single"})
	require.NoError(t, err)

	err = c.Start(ctx)
	require.Error(t, err)
	assert.True(t, api.IsMultipleConsumers(err))
}

func TestConsumer_SuspendStopsDelivery(t *testing.T) {
	c := newContext(t)
	col := &collector{}
	ctx := context.Background()
	_, err := c.AddRoute(ctx, route.Definition{ID: "s", From: "memory:s", Processor: col.processor()})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.SuspendRoute(ctx, "s"))
	status, _ := c.RouteStatus("s")
	assert.Equal(t, api.StatusSuspended, status)
	assert.ErrorIs(t, send(t, c, "memory:s", "dropped"), memory.ErrNoConsumers)

	require.NoError(t, c.ResumeRoute(ctx, "s"))
	require.NoError(t, send(t, c, "memory:s", "kept"))
	assert.Equal(t, []any{"kept"}, col.received())
}

func TestConsumer_StopWaitsForWorkers(t *testing.T) {
	ep := memory.NewEndpoint("memory:w?workers=1", memory.Options{Workers: 1})
	ctx := context.Background()
	require.NoError(t, ep.Start(ctx))

	started := make(chan struct{})
	release := make(chan struct{})
	cons, err := ep.CreateConsumer(api.ProcessorFunc(func(context.Context, *exchange.Exchange) error {
		close(started)
		<-release
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, cons.Start(ctx))
	assert.Equal(t, 1, ep.ConsumerCount())

	require.NoError(t, ep.Send(ctx, exchange.New(nil)))
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- cons.Stop(ctx) }()
	select {
	case <-stopped:
		t.Fatal("stop returned while a worker was busy")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-stopped)
	assert.Zero(t, ep.ConsumerCount())
}

func TestStartRoute_SuspendedQueuedConsumerIsResumed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	c := newContext(t)
	col := &collector{}
	_, err := c.AddRoute(ctx, route.Definition{ID: "w", From: "memory:w?workers=2", Processor: col.processor()})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.SuspendRoute(ctx, "w"))
	status, _ := c.RouteStatus("w")
	assert.Equal(t, api.StatusSuspended, status)
	require.NoError(t, c.StartRoute(ctx, "w"))
	status, _ = c.RouteStatus("w")
	assert.Equal(t, api.StatusStarted, status)

	require.NoError(t, send(t, c, "memory:w", "after"))
	require.Eventually(t, func() bool { return len(col.received()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Stop(ctx))
}
