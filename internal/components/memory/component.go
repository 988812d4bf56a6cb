package memory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"switchyard/internal/api"
	"switchyard/internal/services"
)

// Scheme is the URI scheme served by the component.
const Scheme = "memory"

// Options configure an endpoint.
type Options struct {
	// Workers is the size of each consumer's worker pool. Zero delivers on
	// the sender's goroutine.
	Workers int
	// MultipleConsumers lets several routes consume from the endpoint, each
	// receiving every exchange.
	MultipleConsumers bool
}

// Component creates memory endpoints.
type Component struct {
	lc       *services.Lifecycle
	defaults Options

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

// NewComponent returns a component whose endpoints start from defaults.
func NewComponent(defaults Options) *Component {
	return &Component{
		lc:        services.NewLifecycle("component:" + Scheme),
		defaults:  defaults,
		endpoints: make(map[string]*Endpoint),
	}
}

func (c *Component) Start(ctx context.Context) error { return c.lc.Start(ctx, nil) }

func (c *Component) Stop(ctx context.Context) error { return c.lc.Stop(ctx, nil) }

// CreateEndpoint returns the endpoint for uri. The same name always yields
// the same endpoint.
func (c *Component) CreateEndpoint(uri string) (api.Endpoint, error) {
	name, opts, err := ParseURI(uri, c.defaults)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep, ok := c.endpoints[name]; ok {
		return ep, nil
	}
	ep := NewEndpoint(uri, opts)
	c.endpoints[name] = ep
	return ep, nil
}

// ParseURI splits a memory URI into its name and options, starting from
// defaults.
func ParseURI(uri string, defaults Options) (string, Options, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", Options{}, fmt.Errorf("parsing memory uri %q: %w", uri, err)
	}
	if u.Scheme != Scheme {
		return "", Options{}, fmt.Errorf("uri %q is not a %s uri", uri, Scheme)
	}
	name := u.Opaque
	if name == "" {
		return "", Options{}, fmt.Errorf("memory uri %q has no name", uri)
	}

	opts := defaults
	q := u.Query()
	if v := q.Get("workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return "", Options{}, fmt.Errorf("memory uri %q: invalid workers %q", uri, v)
		}
		opts.Workers = n
	}
	if v := q.Get("multipleConsumers"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", Options{}, fmt.Errorf("memory uri %q: invalid multipleConsumers %q", uri, v)
		}
		opts.MultipleConsumers = b
	}
	return name, opts, nil
}
