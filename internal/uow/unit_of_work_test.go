package uow

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/events"
	"switchyard/internal/exchange"
	"switchyard/internal/inflight"
)

// recordingSync appends its name to a shared log on completion.
type recordingSync struct {
	name  string
	log   *[]string
	veto  bool
	panic bool
}

func (r *recordingSync) OnComplete(*exchange.Exchange) {
	if r.panic {
		panic("sync failure")
	}
	*r.log = append(*r.log, r.name+":complete")
}

func (r *recordingSync) OnFailure(*exchange.Exchange) {
	if r.panic {
		panic("sync failure")
	}
	*r.log = append(*r.log, r.name+":failure")
}

func (r *recordingSync) AllowHandover() bool { return !r.veto }

func newConfig() (Config, *inflight.Repository, *events.Notifier) {
	repo := inflight.New()
	n := events.NewNotifier()
	return Config{AllowUseOriginalMessage: true, UseBreadcrumb: true, Inflight: repo, Notifier: n}, repo, n
}

func TestUnitOfWork_DoneOrdering(t *testing.T) {
	cfg, repo, n := newConfig()

	var log []string
	n.AddListener(events.ListenerFunc(func(e events.Event) {
		switch e.Reason {
		case events.ReasonExchangeCompleted, events.ReasonExchangeFailed:
			// The exchange must already be gone from the inflight view.
			log = append(log, "event:"+string(e.Reason)+":inflight="+strconv.Itoa(repo.Size()))
		}
	}))

	ex := exchange.New(exchange.NewMessage("hello"))
	u := New(context.Background(), ex, cfg)
	assert.Equal(t, 1, repo.Size())
	assert.Same(t, u, ex.UnitOfWork())

	u.AddSynchronization(&recordingSync{name: "first", log: &log})
	u.AddSynchronization(&recordingSync{name: "second", log: &log})

	u.Done()
	u.Done()

	assert.Equal(t, []string{
		"first:complete",
		"second:complete",
		"event:ExchangeCompleted:inflight=0",
	}, log)
}

func TestUnitOfWork_DoneFailure(t *testing.T) {
	cfg, _, n := newConfig()
	var reasons []events.EventReason
	n.AddListener(events.ListenerFunc(func(e events.Event) { reasons = append(reasons, e.Reason) }))

	var log []string
	ex := exchange.New(nil)
	u := New(context.Background(), ex, cfg)
	u.AddSynchronization(&recordingSync{name: "panicky", log: &log, panic: true})
	u.AddSynchronization(&recordingSync{name: "s", log: &log})
	ex.SetErr(errors.New("boom"))

	u.Done()

	assert.Equal(t, []string{"s:failure"}, log)
	assert.Equal(t, []events.EventReason{events.ReasonExchangeCreated, events.ReasonExchangeFailed}, reasons)
}

func TestUnitOfWork_OriginalMessageAndBreadcrumb(t *testing.T) {
	cfg, _, _ := newConfig()
	ex := exchange.New(exchange.NewMessage("original"))
	u := New(context.Background(), ex, cfg)

	ex.In().SetBody("changed")
	require.NotNil(t, u.OriginalMessage())
	assert.Equal(t, "original", u.OriginalMessage().Body())
	assert.Equal(t, ex.ID(), ex.In().HeaderString(exchange.BreadcrumbHeader))

	child := exchange.New(exchange.NewMessage("part"))
	c := u.CreateChild(child)
	assert.Same(t, u, c.Parent())
	assert.Equal(t, ex.ID(), child.In().HeaderString(exchange.BreadcrumbHeader))

	cfg.AllowUseOriginalMessage = false
	other := New(context.Background(), exchange.New(nil), cfg)
	assert.Nil(t, other.OriginalMessage())
}

func TestUnitOfWork_RouteStack(t *testing.T) {
	cfg, _, _ := newConfig()
	u := New(context.Background(), exchange.New(nil), cfg)

	assert.Equal(t, "", u.PopRoute())
	u.PushRoute("a")
	u.PushRoute("b")
	assert.Equal(t, "b", u.RouteID())
	assert.Equal(t, 2, u.RouteStackLevel())
	assert.Equal(t, "b", u.PopRoute())
	assert.Equal(t, "a", u.RouteID())
}

func TestUnitOfWork_TransactedBy(t *testing.T) {
	cfg, _, _ := newConfig()
	u := New(context.Background(), exchange.New(nil), cfg)

	assert.False(t, u.IsTransacted())
	u.BeginTransactedBy("tx")
	u.BeginTransactedBy("tx")
	u.EndTransactedBy("tx")
	assert.True(t, u.IsTransactedBy("tx"))
	u.EndTransactedBy("tx")
	assert.False(t, u.IsTransactedBy("tx"))
	assert.False(t, u.IsTransacted())
}

func TestUnitOfWork_Handover(t *testing.T) {
	cfg, _, _ := newConfig()
	var log []string
	from := New(context.Background(), exchange.New(nil), cfg)
	to := New(context.Background(), exchange.New(nil), cfg)

	moving := &recordingSync{name: "moving", log: &log}
	vetoing := &recordingSync{name: "vetoing", log: &log, veto: true}
	filtered := &recordingSync{name: "filtered", log: &log}
	from.AddSynchronization(moving)
	from.AddSynchronization(vetoing)
	from.AddSynchronization(filtered)

	moved := from.HandoverSynchronization(to, func(s exchange.Synchronization) bool { return s != filtered })

	assert.Equal(t, 1, moved)
	assert.True(t, to.ContainsSynchronization(moving))
	assert.True(t, from.ContainsSynchronization(vetoing))
	assert.True(t, from.ContainsSynchronization(filtered))

	from.RemoveSynchronization(filtered)
	assert.False(t, from.ContainsSynchronization(filtered))
}
