// Package logsink provides the log endpoint component. Log endpoints only
// produce: every exchange sent to one is written to the application log.
//
//	log:audit?level=debug&showBody=false
package logsink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"

	"switchyard/internal/api"
	"switchyard/internal/exchange"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

const Scheme = "log"

// ErrProducerOnly is returned when a route tries to consume from a log
// endpoint.
var ErrProducerOnly = errors.New("log endpoints cannot be consumed from")

// Component creates log endpoints.
type Component struct {
	lc *services.Lifecycle
}

func NewComponent() *Component {
	return &Component{lc: services.NewLifecycle("component:" + Scheme)}
}

func (c *Component) Start(ctx context.Context) error { return c.lc.Start(ctx, nil) }

func (c *Component) Stop(ctx context.Context) error { return c.lc.Stop(ctx, nil) }

func (c *Component) CreateEndpoint(uri string) (api.Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing log uri %q: %w", uri, err)
	}
	if u.Scheme != Scheme || u.Opaque == "" {
		return nil, fmt.Errorf("invalid log uri %q", uri)
	}
	ep := &Endpoint{
		lc:       services.NewLifecycle("endpoint:" + uri),
		uri:      uri,
		name:     u.Opaque,
		level:    logging.LevelInfo,
		showBody: true,
	}
	q := u.Query()
	if v := q.Get("level"); v != "" {
		ep.level = logging.ParseLevel(v)
	}
	if v := q.Get("showBody"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("log uri %q: invalid showBody %q", uri, v)
		}
		ep.showBody = b
	}
	return ep, nil
}

// Endpoint writes exchanges to the log under its name.
type Endpoint struct {
	lc       *services.Lifecycle
	uri      string
	name     string
	level    logging.LogLevel
	showBody bool

	logged atomic.Int64
}

func (e *Endpoint) URI() string { return e.uri }

func (e *Endpoint) Start(ctx context.Context) error { return e.lc.Start(ctx, nil) }

func (e *Endpoint) Stop(ctx context.Context) error { return e.lc.Stop(ctx, nil) }

func (e *Endpoint) IsSingletonProducer() bool { return true }

func (e *Endpoint) CreateConsumer(api.Processor) (api.Consumer, error) {
	return nil, fmt.Errorf("%s: %w", e.uri, ErrProducerOnly)
}

func (e *Endpoint) CreateProducer() (api.Producer, error) {
	return &producer{lc: services.NewLifecycle("producer:" + e.uri), endpoint: e}, nil
}

// Logged returns the number of exchanges written so far.
func (e *Endpoint) Logged() int64 { return e.logged.Load() }

func (e *Endpoint) log(ex *exchange.Exchange) {
	e.logged.Add(1)
	msg := "Exchange[%s] from route %s"
	args := []any{ex.ID(), ex.FromRouteID()}
	if e.showBody {
		msg += " body: %v"
		args = append(args, ex.In().Body())
	}
	switch e.level {
	case logging.LevelDebug:
		logging.Debug("Log:"+e.name, msg, args...)
	case logging.LevelWarn:
		logging.Warn("Log:"+e.name, msg, args...)
	case logging.LevelError:
		logging.Error("Log:"+e.name, ex.Err(), msg, args...)
	default:
		logging.Info("Log:"+e.name, msg, args...)
	}
}

type producer struct {
	lc       *services.Lifecycle
	endpoint *Endpoint
}

func (p *producer) Endpoint() api.Endpoint { return p.endpoint }

func (p *producer) Start(ctx context.Context) error { return p.lc.Start(ctx, nil) }

func (p *producer) Stop(ctx context.Context) error { return p.lc.Stop(ctx, nil) }

func (p *producer) Process(_ context.Context, ex *exchange.Exchange) error {
	if !p.lc.IsStarted() {
		return fmt.Errorf("producer for %s is not started", p.endpoint.uri)
	}
	p.endpoint.log(ex)
	return nil
}
