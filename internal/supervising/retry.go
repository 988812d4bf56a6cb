package supervising

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"switchyard/internal/events"
	"switchyard/pkg/logging"
)

// TaskStatus is the state of a route's retry task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "Active"
	TaskCompleted TaskStatus = "Completed"
	TaskExhausted TaskStatus = "Exhausted"
	TaskCancelled TaskStatus = "Cancelled"
)

// RetryInfo describes the retry task of a route.
type RetryInfo struct {
	RouteID     string
	Attempts    int
	NextAttempt time.Time
	LastError   error
	Status      TaskStatus
}

type retryTask struct {
	routeID  string
	backOff  backoff.BackOff
	attempts int
	next     time.Time
	lastErr  error
	status   TaskStatus
}

// retryManager keeps one retry task per route and runs the attempts on the
// scheduler.
type retryManager struct {
	sched    *scheduler
	notifier *events.Notifier
	// backOffFor returns a fresh back-off for a route.
	backOffFor func(routeID string) backoff.BackOff
	// attempt tries to start a route. It reports false without error when
	// the route no longer needs starting. current reports whether the task
	// is still live and must be checked right before starting.
	attempt func(ctx context.Context, routeID string, current func() bool) (started bool, err error)
	// exhausted is called once a route's back-off is used up.
	exhausted func(routeID string, err error)

	mu    sync.Mutex
	tasks map[string]*retryTask
}

func taskKey(routeID string) string { return "retry:" + routeID }

// schedule hands a failed start of routeID to the manager.
func (m *retryManager) schedule(routeID string, cause error) {
	m.mu.Lock()
	t, ok := m.tasks[routeID]
	if !ok {
		t = &retryTask{routeID: routeID, backOff: m.backOffFor(routeID), status: TaskActive}
		m.tasks[routeID] = t
	}
	t.lastErr = cause
	m.mu.Unlock()

	m.next(t)
}

// next schedules the following attempt of t or gives up.
func (m *retryManager) next(t *retryTask) {
	m.mu.Lock()
	if m.tasks[t.routeID] != t {
		m.mu.Unlock()
		return
	}
	delay := t.backOff.NextBackOff()
	if delay == backoff.Stop {
		t.status = TaskExhausted
		delete(m.tasks, t.routeID)
		attempts, err := t.attempts, t.lastErr
		m.mu.Unlock()

		logging.Warn("Supervising", "Restarting route %s exhausted after %d attempts: %v", t.routeID, attempts, err)
		m.notifier.Emit(events.Event{
			Type:      events.EventTypeWarning,
			Reason:    events.ReasonRouteRestartingFailure,
			RouteID:   t.routeID,
			Err:       err,
			Attempt:   attempts,
			Exhausted: true,
		})
		m.exhausted(t.routeID, err)
		return
	}
	t.next = time.Now().Add(delay)
	m.mu.Unlock()

	if !m.sched.schedule(taskKey(t.routeID), delay, func(ctx context.Context) { m.run(ctx, t) }) {
		m.drop(t, TaskCancelled)
		return
	}
	logging.Info("Supervising", "Route %s will be restarted in %s (attempt %d)", t.routeID, delay, t.attempts+1)
}

func (m *retryManager) run(ctx context.Context, t *retryTask) {
	m.mu.Lock()
	if m.tasks[t.routeID] != t {
		m.mu.Unlock()
		return
	}
	t.attempts++
	attempt := t.attempts
	m.mu.Unlock()

	logging.Info("Supervising", "Restarting route %s (attempt %d)", t.routeID, attempt)
	m.notifier.Emit(events.Event{Reason: events.ReasonRouteRestarting, RouteID: t.routeID, Attempt: attempt})

	started, err := m.attempt(ctx, t.routeID, func() bool { return m.isCurrent(t) })
	if err == nil {
		if started {
			logging.Info("Supervising", "Route %s restarted after %d attempts", t.routeID, attempt)
		}
		m.drop(t, TaskCompleted)
		return
	}

	m.mu.Lock()
	if m.tasks[t.routeID] != t {
		// Cancelled while the attempt ran.
		m.mu.Unlock()
		return
	}
	t.lastErr = err
	m.mu.Unlock()

	logging.Warn("Supervising", "Failed restarting route %s (attempt %d): %v", t.routeID, attempt, err)
	m.notifier.Emit(events.Event{
		Type:    events.EventTypeWarning,
		Reason:  events.ReasonRouteRestartingFailure,
		RouteID: t.routeID,
		Err:     err,
		Attempt: attempt,
	})
	m.next(t)
}

func (m *retryManager) isCurrent(t *retryTask) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[t.routeID] == t
}

func (m *retryManager) drop(t *retryTask, status TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[t.routeID] == t {
		t.status = status
		delete(m.tasks, t.routeID)
	}
}

// cancel drops the retry task of routeID. It reports whether one existed.
func (m *retryManager) cancel(routeID string) bool {
	m.mu.Lock()
	t, ok := m.tasks[routeID]
	if ok {
		t.status = TaskCancelled
		delete(m.tasks, routeID)
	}
	m.mu.Unlock()

	m.sched.cancelTask(taskKey(routeID))
	if ok {
		logging.Info("Supervising", "Cancelled restarting of route %s", routeID)
	}
	return ok
}

func (m *retryManager) cancelAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.cancel(id)
	}
}

func (m *retryManager) isRestarting(routeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[routeID]
	return ok
}

// infos returns the active tasks sorted by route id.
func (m *retryManager) infos() []RetryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RetryInfo, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, RetryInfo{
			RouteID:     t.routeID,
			Attempts:    t.attempts,
			NextAttempt: t.next,
			LastError:   t.lastErr,
			Status:      t.status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
	return out
}
