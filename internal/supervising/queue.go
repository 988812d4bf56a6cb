package supervising

import (
	"context"
	"sync"
	"time"
)

// task is a unit of work for the scheduler. Tasks are keyed; adding a task
// with a queued key replaces the queued task.
type task struct {
	key string
	run func(ctx context.Context)
}

// workQueue is a FIFO of tasks with deduplication by key.
type workQueue struct {
	mu sync.Mutex

	queue []task

	// processing tracks keys currently being run
	processing map[string]bool

	// dirty holds tasks added while their key was being run
	dirty map[string]task

	cond *sync.Cond

	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		processing: make(map[string]bool),
		dirty:      make(map[string]task),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add adds or replaces a task.
func (q *workQueue) Add(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}
	if q.processing[t.key] {
		q.dirty[t.key] = t
		return
	}
	for i, existing := range q.queue {
		if existing.key == t.key {
			q.queue[i] = t
			return
		}
	}
	q.queue = append(q.queue, t)
	q.cond.Signal()
}

// Get returns the next task, blocking until one is available, ctx is done
// or the queue shuts down.
func (q *workQueue) Get(ctx context.Context) (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.shuttingDown {
		select {
		case <-ctx.Done():
			return task{}, false
		default:
		}

		// Wake the waiter when ctx is cancelled; done releases the helper
		// on a normal wakeup.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		select {
		case <-ctx.Done():
			return task{}, false
		default:
		}
	}

	if q.shuttingDown && len(q.queue) == 0 {
		return task{}, false
	}

	t := q.queue[0]
	q.queue = q.queue[1:]
	q.processing[t.key] = true
	return t, true
}

// Done marks t as run, requeueing a task added for its key meanwhile.
func (q *workQueue) Done(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, t.key)
	if next, ok := q.dirty[t.key]; ok {
		delete(q.dirty, t.key)
		q.queue = append(q.queue, next)
		q.cond.Signal()
	}
}

// Remove drops the queued or requeued task for key.
func (q *workQueue) Remove(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, removed := q.dirty[key]
	delete(q.dirty, key)
	for i, t := range q.queue {
		if t.key == key {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return removed
}

// Len returns the number of queued tasks.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue) + len(q.dirty)
}

// Shutdown wakes every waiter and rejects further tasks.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
}

// delayedQueue adds delayed and cancellable tasks to a workQueue.
type delayedQueue struct {
	queue  *workQueue
	mu     sync.Mutex
	timers map[string]*time.Timer
	stopCh chan struct{}
}

func newDelayedQueue() *delayedQueue {
	return &delayedQueue{
		queue:  newWorkQueue(),
		timers: make(map[string]*time.Timer),
		stopCh: make(chan struct{}),
	}
}

// AddAfter queues t once delay has passed, replacing a pending task with
// the same key.
func (d *delayedQueue) AddAfter(t task, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[t.key]; ok {
		timer.Stop()
		delete(d.timers, t.key)
	}
	if delay <= 0 {
		d.queue.Add(t)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		// A cancelled or replaced timer may still fire.
		if d.timers[t.key] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.timers, t.key)
		d.mu.Unlock()

		select {
		case <-d.stopCh:
		default:
			d.queue.Add(t)
		}
	})
	d.timers[t.key] = timer
}

// Cancel drops the pending or queued task for key.
func (d *delayedQueue) Cancel(key string) bool {
	d.mu.Lock()
	timer, ok := d.timers[key]
	if ok {
		timer.Stop()
		delete(d.timers, key)
	}
	d.mu.Unlock()

	return d.queue.Remove(key) || ok
}

func (d *delayedQueue) Get(ctx context.Context) (task, bool) {
	return d.queue.Get(ctx)
}

func (d *delayedQueue) Done(t task) {
	d.queue.Done(t)
}

// Pending returns the number of tasks waiting for their delay or a worker.
func (d *delayedQueue) Pending() int {
	d.mu.Lock()
	n := len(d.timers)
	d.mu.Unlock()
	return n + d.queue.Len()
}

// Shutdown stops the queue and its timers.
func (d *delayedQueue) Shutdown() {
	close(d.stopCh)

	d.mu.Lock()
	for _, timer := range d.timers {
		timer.Stop()
	}
	d.timers = make(map[string]*time.Timer)
	d.mu.Unlock()

	d.queue.Shutdown()
}
