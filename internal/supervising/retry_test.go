package supervising

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/events"
)

func newTestRetryManager(s *scheduler, attempt func(context.Context, string, func() bool) (bool, error)) *retryManager {
	return &retryManager{
		sched:    s,
		notifier: events.NewNotifier(),
		backOffFor: func(string) backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		},
		attempt:   attempt,
		exhausted: func(string, error) {},
		tasks:     make(map[string]*retryTask),
	}
}

func TestRetryManager_AttemptSeesCancelMadeWhileRunning(t *testing.T) {
	s := &scheduler{}
	s.start()
	defer s.stop()

	type observed struct{ before, after bool }
	seen := make(chan observed, 1)
	var m *retryManager
	m = newTestRetryManager(s, func(_ context.Context, id string, current func() bool) (bool, error) {
		before := current()
		// A manual stop of the route lands between the checks and the start.
		m.cancel(id)
		seen <- observed{before: before, after: current()}
		return false, nil
	})

	m.schedule("orders", errors.New("down"))

	select {
	case got := <-seen:
		assert.True(t, got.before)
		assert.False(t, got.after)
	case <-time.After(time.Second):
		t.Fatal("attempt did not run")
	}
	assert.False(t, m.isRestarting("orders"))
	assert.Empty(t, m.infos())
}

func TestRetryManager_RetriesUntilAttemptSucceeds(t *testing.T) {
	s := &scheduler{}
	s.start()
	defer s.stop()

	done := make(chan int, 1)
	calls := 0
	m := newTestRetryManager(s, func(_ context.Context, _ string, current func() bool) (bool, error) {
		assert.True(t, current())
		calls++
		if calls < 2 {
			return false, errors.New("still down")
		}
		done <- calls
		return true, nil
	})

	m.schedule("orders", errors.New("down"))

	select {
	case n := <-done:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("route was not restarted")
	}
	require.Eventually(t, func() bool { return !m.isRestarting("orders") }, time.Second, time.Millisecond)
}
