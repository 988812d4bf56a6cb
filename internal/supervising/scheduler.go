package supervising

import (
	"context"
	"sync"
	"time"

	"switchyard/pkg/logging"
)

// scheduler runs delayed tasks one at a time on a single worker.
type scheduler struct {
	mu     sync.Mutex
	queue  *delayedQueue
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}

	q := newDelayedQueue()
	ctx, cancel := context.WithCancel(context.Background())
	s.queue, s.cancel = q, cancel

	s.wg.Add(1)
	go s.worker(ctx, q)
	logging.Debug("Supervising", "Scheduler started")
}

// stop cancels every pending task and waits for a running one.
func (s *scheduler) stop() {
	s.mu.Lock()
	q, cancel := s.queue, s.cancel
	s.queue, s.cancel = nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}

	cancel()
	q.Shutdown()
	s.wg.Wait()
	logging.Debug("Supervising", "Scheduler stopped")
}

func (s *scheduler) worker(ctx context.Context, q *delayedQueue) {
	defer s.wg.Done()
	for {
		t, ok := q.Get(ctx)
		if !ok {
			return
		}
		t.run(ctx)
		q.Done(t)
	}
}

// schedule runs fn after delay under key. It reports false when the
// scheduler is not running.
func (s *scheduler) schedule(key string, delay time.Duration, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return false
	}
	s.queue.AddAfter(task{key: key, run: fn}, delay)
	return true
}

func (s *scheduler) cancelTask(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return false
	}
	return s.queue.Cancel(key)
}

// pending returns the number of tasks not yet run.
func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Pending()
}

func (s *scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil
}
