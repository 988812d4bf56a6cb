package services

import (
	"context"
	"fmt"
	"sync"

	"switchyard/internal/api"
)

// State is the internal state of a Lifecycle.
type State string

const (
	StateNew          State = "New"
	StateStarting     State = "Starting"
	StateStarted      State = "Started"
	StateSuspending   State = "Suspending"
	StateSuspended    State = "Suspended"
	StateStopping     State = "Stopping"
	StateStopped      State = "Stopped"
	StateShuttingDown State = "ShuttingDown"
	StateShutdown     State = "Shutdown"
	StateFailed       State = "Failed"
)

// StateChangeCallback is called after a Lifecycle changes state.
type StateChangeCallback func(name string, oldState, newState State, err error)

// Hook is the work done by a concrete service for one transition.
type Hook func(ctx context.Context) error

// Lifecycle provides the state machine shared by services. Concrete types
// embed a *Lifecycle and pass their own hooks:
//
//	func (c *consumer) Start(ctx context.Context) error {
//	    return c.lc.Start(ctx, c.doStart)
//	}
//
// Transitions are serialized; repeated calls are no-ops once the target
// state is reached. Hooks may read the state of their own Lifecycle but must
// not start another transition on it.
type Lifecycle struct {
	opMu sync.Mutex

	mu            sync.RWMutex
	name          string
	state         State
	lastError     error
	stateChangeCb StateChangeCallback
}

// NewLifecycle creates a lifecycle in StateNew.
func NewLifecycle(name string) *Lifecycle {
	return &Lifecycle{name: name, state: StateNew}
}

// Name returns the name given at construction.
func (l *Lifecycle) Name() string {
	return l.name
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// LastError returns the error of the last failed transition.
func (l *Lifecycle) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastError
}

// SetStateChangeCallback sets the state change callback.
func (l *Lifecycle) SetStateChangeCallback(cb StateChangeCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateChangeCb = cb
}

// Status maps the internal state to the public ServiceStatus.
func (l *Lifecycle) Status() api.ServiceStatus {
	switch l.State() {
	case StateNew:
		return api.StatusInitialized
	case StateStarting:
		return api.StatusStarting
	case StateStarted:
		return api.StatusStarted
	case StateSuspending:
		return api.StatusSuspending
	case StateSuspended:
		return api.StatusSuspended
	case StateStopping, StateShuttingDown:
		return api.StatusStopping
	default:
		return api.StatusStopped
	}
}

// IsStarted reports whether the lifecycle is in StateStarted.
func (l *Lifecycle) IsStarted() bool { return l.State() == StateStarted }

// IsSuspended reports whether the lifecycle is in StateSuspended.
func (l *Lifecycle) IsSuspended() bool { return l.State() == StateSuspended }

// IsStopped reports whether the lifecycle is not running.
func (l *Lifecycle) IsStopped() bool {
	switch l.State() {
	case StateNew, StateStopped, StateShutdown, StateFailed:
		return true
	}
	return false
}

// Start runs hook unless already started. A suspended service must be
// resumed; starting it fails without running hook.
func (l *Lifecycle) Start(ctx context.Context, hook Hook) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch l.State() {
	case StateStarted, StateStarting:
		return nil
	case StateSuspended:
		return fmt.Errorf("service %s is suspended and must be resumed", l.name)
	case StateShuttingDown:
		return fmt.Errorf("service %s is shutting down", l.name)
	}
	return l.transition(ctx, StateStarting, StateStarted, hook)
}

// Stop runs hook unless already stopped. A failed service is stopped so it
// can release whatever it acquired before failing.
func (l *Lifecycle) Stop(ctx context.Context, hook Hook) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch l.State() {
	case StateNew, StateStopped, StateStopping, StateShutdown, StateShuttingDown:
		return nil
	}
	return l.transition(ctx, StateStopping, StateStopped, hook)
}

// Suspend runs hook when started; otherwise it does nothing.
func (l *Lifecycle) Suspend(ctx context.Context, hook Hook) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.State() != StateStarted {
		return nil
	}
	return l.transition(ctx, StateSuspending, StateSuspended, hook)
}

// Resume runs hook when suspended; otherwise it does nothing.
func (l *Lifecycle) Resume(ctx context.Context, hook Hook) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if l.State() != StateSuspended {
		return nil
	}
	return l.transition(ctx, StateStarting, StateStarted, hook)
}

// Shutdown stops the service with stopHook if needed, then runs
// shutdownHook. A shut down service may be started again, in which case
// its start hook must rebuild whatever shutdownHook released.
func (l *Lifecycle) Shutdown(ctx context.Context, stopHook, shutdownHook Hook) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch l.State() {
	case StateShutdown, StateShuttingDown:
		return nil
	case StateStarted, StateSuspended, StateFailed, StateStarting, StateSuspending:
		if err := l.transition(ctx, StateStopping, StateStopped, stopHook); err != nil {
			return err
		}
	}
	return l.transition(ctx, StateShuttingDown, StateShutdown, shutdownHook)
}

// transition must be called with l.opMu held.
func (l *Lifecycle) transition(ctx context.Context, during, target State, hook Hook) error {
	l.setState(during, nil)
	if hook != nil {
		if err := hook(ctx); err != nil {
			l.setState(StateFailed, err)
			return err
		}
	}
	l.setState(target, nil)
	return nil
}

func (l *Lifecycle) setState(s State, err error) {
	l.mu.Lock()
	old := l.state
	l.state = s
	if err != nil {
		l.lastError = err
	}
	cb := l.stateChangeCb
	l.mu.Unlock()

	if cb != nil && old != s {
		cb(l.name, old, s, err)
	}
}
