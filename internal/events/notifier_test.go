package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_ListenersAndSubscribers(t *testing.T) {
	n := NewNotifier()

	var got []Event
	n.AddListener(ListenerFunc(func(e Event) { got = append(got, e) }))
	ch := n.Subscribe(1)

	n.Route(ReasonRouteStarted, "a")
	n.RouteFailure(ReasonRouteRestartingFailure, "b", errors.New("boom"))

	require.Len(t, got, 2)
	assert.Equal(t, EventTypeNormal, got[0].Type)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.True(t, got[1].IsWarning())

	// The subscriber buffer holds one event; the second was dropped.
	e := <-ch
	assert.Equal(t, "a", e.RouteID)
	select {
	case <-ch:
		t.Fatal("expected no second event")
	default:
	}

	n.Close()
	_, open := <-ch
	assert.False(t, open)
}

func TestNotifier_NilIsSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.Route(ReasonRouteStarted, "a")
		n.Close()
	})
}
