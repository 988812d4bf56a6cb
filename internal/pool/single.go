package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"switchyard/internal/api"
)

// singlePool shares one instance between all callers.
type singlePool[S Pooled] struct {
	owner *ServicePool[S]
	ep    api.Endpoint

	mu  sync.Mutex
	cur atomic.Pointer[S]
}

func (p *singlePool[S]) acquire(ctx context.Context) (S, error) {
	p.cleanUp(ctx)

	if s := p.cur.Load(); s != nil {
		p.owner.touch(*s)
		return *s, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.cur.Load(); s != nil {
		return *s, nil
	}
	s, err := p.owner.newInstance(ctx, p.ep)
	if err != nil {
		return s, err
	}
	p.cur.Store(&s)
	p.owner.track(s, p)
	return s, nil
}

func (p *singlePool[S]) release(ctx context.Context, _ S) {
	p.cleanUp(ctx)
}

func (p *singlePool[S]) evict(s S) {
	if cur := p.cur.Load(); cur != nil && *cur == s {
		p.owner.evictedSingles.Set(p.ep.URI(), struct{}{})
	}
}

// cleanUp stops the current instance if it was evicted.
func (p *singlePool[S]) cleanUp(ctx context.Context) {
	if _, evicted := p.owner.evictedSingles.Pop(p.ep.URI()); !evicted {
		return
	}
	p.mu.Lock()
	old := p.cur.Swap(nil)
	p.mu.Unlock()
	if old != nil {
		p.owner.stopInstance(ctx, *old)
	}
}

func (p *singlePool[S]) stop(ctx context.Context) error {
	p.mu.Lock()
	old := p.cur.Swap(nil)
	p.mu.Unlock()
	if old == nil {
		return nil
	}
	err := (*old).Stop(ctx)
	if p.owner.cfg.Registry != nil {
		p.owner.cfg.Registry.Remove(*old)
	}
	return err
}

func (p *singlePool[S]) size() int {
	if p.cur.Load() != nil {
		return 1
	}
	return 0
}

func (p *singlePool[S]) empty() bool { return p.cur.Load() == nil }
