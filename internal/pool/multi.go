package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"

	"switchyard/internal/api"
)

// multiPool keeps up to capacity idle instances of an endpoint.
type multiPool[S Pooled] struct {
	owner    *ServicePool[S]
	ep       api.Endpoint
	capacity int64

	idle   *queue.Queue
	queued atomic.Int64

	mu      sync.Mutex
	live    map[S]struct{}
	evicted map[S]struct{}
}

func newMultiPool[S Pooled](owner *ServicePool[S], ep api.Endpoint, capacity int) *multiPool[S] {
	return &multiPool[S]{
		owner:    owner,
		ep:       ep,
		capacity: int64(capacity),
		idle:     queue.New(int64(capacity)),
		live:     make(map[S]struct{}),
		evicted:  make(map[S]struct{}),
	}
}

func (p *multiPool[S]) acquire(ctx context.Context) (S, error) {
	p.cleanUp(ctx)

	for {
		s, ok := p.poll()
		if !ok {
			break
		}
		if p.forgetIfEvicted(s) {
			p.owner.stopInstance(ctx, s)
			continue
		}
		p.owner.touch(s)
		return s, nil
	}

	s, err := p.owner.newInstance(ctx, p.ep)
	if err != nil {
		return s, err
	}
	p.mu.Lock()
	p.live[s] = struct{}{}
	p.mu.Unlock()
	p.owner.track(s, p)
	return s, nil
}

// release offers s back to the queue. An evicted instance, or one that does
// not fit, is stopped right away; the releaser never blocks.
func (p *multiPool[S]) release(ctx context.Context, s S) {
	p.cleanUp(ctx)
	if p.forgetIfEvicted(s) || !p.offer(s) {
		p.mu.Lock()
		delete(p.live, s)
		p.mu.Unlock()
		p.owner.stopInstance(ctx, s)
	}
}

func (p *multiPool[S]) evict(s S) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[s]; ok {
		p.evicted[s] = struct{}{}
	}
}

// forgetIfEvicted reports whether s was evicted, forgetting it if so.
func (p *multiPool[S]) forgetIfEvicted(s S) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.evicted[s]; !ok {
		return false
	}
	delete(p.evicted, s)
	delete(p.live, s)
	return true
}

// cleanUp stops evicted instances sitting idle in the queue. Evicted
// instances that are acquired are stopped on release instead.
func (p *multiPool[S]) cleanUp(ctx context.Context) {
	p.mu.Lock()
	pending := len(p.evicted)
	p.mu.Unlock()
	if pending == 0 {
		return
	}

	items, err := p.idle.TakeUntil(func(any) bool { return true })
	if err != nil {
		return
	}
	p.queued.Add(-int64(len(items)))
	for _, item := range items {
		s := item.(S)
		if p.forgetIfEvicted(s) {
			p.owner.stopInstance(ctx, s)
			continue
		}
		if !p.offer(s) {
			p.mu.Lock()
			delete(p.live, s)
			p.mu.Unlock()
			p.owner.stopInstance(ctx, s)
		}
	}
}

func (p *multiPool[S]) poll() (S, bool) {
	taken := false
	items, err := p.idle.TakeUntil(func(any) bool {
		if taken {
			return false
		}
		taken = true
		return true
	})
	if err != nil || len(items) == 0 {
		var zero S
		return zero, false
	}
	p.queued.Add(-1)
	return items[0].(S), true
}

func (p *multiPool[S]) offer(s S) bool {
	if p.queued.Add(1) > p.capacity {
		p.queued.Add(-1)
		return false
	}
	if err := p.idle.Put(s); err != nil {
		p.queued.Add(-1)
		return false
	}
	return true
}

func (p *multiPool[S]) stop(ctx context.Context) error {
	items := p.idle.Dispose()
	p.queued.Store(0)

	var errs []error
	for _, item := range items {
		s := item.(S)
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if p.owner.cfg.Registry != nil {
			p.owner.cfg.Registry.Remove(s)
		}
	}
	p.mu.Lock()
	p.live = make(map[S]struct{})
	p.evicted = make(map[S]struct{})
	p.mu.Unlock()
	return errors.Join(errs...)
}

func (p *multiPool[S]) size() int {
	return int(p.idle.Len())
}

func (p *multiPool[S]) empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live) == 0
}
