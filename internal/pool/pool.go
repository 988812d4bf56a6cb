package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/errgroup"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 100

// ErrStopped is returned when acquiring from a stopped pool.
var ErrStopped = errors.New("service pool is stopped")

// Pooled is a service that can be cached by a ServicePool.
type Pooled interface {
	comparable
	api.Service
}

// Factory creates a new, not yet started, instance for an endpoint.
type Factory[S Pooled] func(ctx context.Context, ep api.Endpoint) (S, error)

// Registry is where pooled instances are registered while they are alive,
// usually the owning context's service registry.
type Registry interface {
	Add(svc api.Service, stopOnShutdown bool) error
	Remove(svc api.Service) bool
}

// Config holds the pool options.
type Config struct {
	// Capacity bounds the number of instances across all endpoints.
	Capacity int
	// MultiPoolCapacity bounds the idle instances kept per multi pool.
	// Zero means Capacity.
	MultiPoolCapacity int
	Registry          Registry
}

type endpointPool[S Pooled] interface {
	acquire(ctx context.Context) (S, error)
	release(ctx context.Context, s S)
	evict(s S)
	cleanUp(ctx context.Context)
	stop(ctx context.Context) error
	size() int
	empty() bool
}

// ServicePool caches service instances per endpoint URI. It is safe for
// concurrent use from the data plane.
type ServicePool[S Pooled] struct {
	create Factory[S]
	cfg    Config

	pools cmap.ConcurrentMap[string, endpointPool[S]]
	// evictedSingles flags single pools whose instance was evicted.
	evictedSingles cmap.ConcurrentMap[string, struct{}]
	cache          *lru.Cache[S, endpointPool[S]]
	stopped        atomic.Bool
}

// New creates a pool creating instances with create.
func New[S Pooled](create Factory[S], cfg Config) (*ServicePool[S], error) {
	if create == nil {
		return nil, fmt.Errorf("pool factory is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MultiPoolCapacity <= 0 {
		cfg.MultiPoolCapacity = cfg.Capacity
	}
	p := &ServicePool[S]{
		create:         create,
		cfg:            cfg,
		pools:          cmap.New[endpointPool[S]](),
		evictedSingles: cmap.New[struct{}](),
	}
	cache, err := lru.NewWithEvict[S, endpointPool[S]](cfg.Capacity, p.onEvict)
	if err != nil {
		return nil, fmt.Errorf("creating pool cache: %w", err)
	}
	p.cache = cache
	return p, nil
}

// onEvict runs on the goroutine that added to the cache. It must only flag
// the instance: another goroutine may be using it right now.
func (p *ServicePool[S]) onEvict(s S, owner endpointPool[S]) {
	owner.evict(s)
}

// Start implements api.Service.
func (p *ServicePool[S]) Start(context.Context) error {
	p.stopped.Store(false)
	return nil
}

// Stop stops every idle instance of every pool and forgets all pools.
// Instances still acquired are stopped when they are released.
func (p *ServicePool[S]) Stop(ctx context.Context) error {
	p.stopped.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	for item := range p.pools.IterBuffered() {
		ep := item.Val
		g.Go(func() error { return ep.stop(gctx) })
	}
	err := g.Wait()

	p.pools.Clear()
	p.evictedSingles.Clear()
	p.cache.Purge()
	return err
}

// Acquire returns an instance for ep, creating and starting one if needed.
func (p *ServicePool[S]) Acquire(ctx context.Context, ep api.Endpoint) (S, error) {
	if p.stopped.Load() {
		var zero S
		return zero, ErrStopped
	}
	return p.poolFor(ep).acquire(ctx)
}

// Release gives s back to the pool of ep.
func (p *ServicePool[S]) Release(ctx context.Context, ep api.Endpoint, s S) {
	if pl, ok := p.pools.Get(ep.URI()); ok && !p.stopped.Load() {
		pl.release(ctx, s)
		return
	}
	p.stopInstance(ctx, s)
}

// CleanUp stops every evicted instance that is not in use and forgets pools
// that hold no instances anymore.
func (p *ServicePool[S]) CleanUp(ctx context.Context) {
	for item := range p.pools.IterBuffered() {
		item.Val.cleanUp(ctx)
		if item.Val.empty() {
			p.pools.RemoveCb(item.Key, func(_ string, v endpointPool[S], exists bool) bool {
				return exists && v == item.Val && v.empty()
			})
		}
	}
}

// Forget stops the idle instances held for ep and drops its pool, so a
// later Acquire for the same URI starts from scratch. Instances still
// acquired are stopped when they are released.
func (p *ServicePool[S]) Forget(ctx context.Context, ep api.Endpoint) error {
	pl, ok := p.pools.Pop(ep.URI())
	p.evictedSingles.Remove(ep.URI())
	if !ok {
		return nil
	}
	return pl.stop(ctx)
}

// Size returns the number of idle or shared instances held by all pools.
func (p *ServicePool[S]) Size() int {
	n := 0
	for item := range p.pools.IterBuffered() {
		n += item.Val.size()
	}
	return n
}

func (p *ServicePool[S]) poolFor(ep api.Endpoint) endpointPool[S] {
	uri := ep.URI()
	if pl, ok := p.pools.Get(uri); ok {
		return pl
	}
	var candidate endpointPool[S]
	if ep.IsSingletonProducer() {
		candidate = &singlePool[S]{owner: p, ep: ep}
	} else {
		candidate = newMultiPool(p, ep, p.cfg.MultiPoolCapacity)
	}
	p.pools.SetIfAbsent(uri, candidate)
	pl, _ := p.pools.Get(uri)
	return pl
}

// newInstance creates, starts and registers an instance. The caller tracks
// it in the global cache once it is published.
func (p *ServicePool[S]) newInstance(ctx context.Context, ep api.Endpoint) (S, error) {
	s, err := p.create(ctx, ep)
	if err != nil {
		var zero S
		return zero, fmt.Errorf("creating pooled instance for %s: %w", ep.URI(), err)
	}
	if err := s.Start(ctx); err != nil {
		var zero S
		return zero, fmt.Errorf("starting pooled instance for %s: %w", ep.URI(), err)
	}
	if p.cfg.Registry != nil {
		if err := p.cfg.Registry.Add(s, false); err != nil {
			logging.WarnErr("Pool", err, "Could not register pooled instance for %s", ep.URI())
		}
	}
	return s, nil
}

func (p *ServicePool[S]) track(s S, owner endpointPool[S]) {
	p.cache.Add(s, owner)
}

func (p *ServicePool[S]) touch(s S) {
	p.cache.Get(s)
}

// stopInstance stops s and forgets it. Failures are logged.
func (p *ServicePool[S]) stopInstance(ctx context.Context, s S) {
	if err := s.Stop(ctx); err != nil {
		logging.WarnErr("Pool", err, "Error stopping pooled instance %T", s)
	}
	if p.cfg.Registry != nil {
		p.cfg.Registry.Remove(s)
	}
	p.cache.Remove(s)
}
