package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"switchyard/internal/api"
	"switchyard/internal/services"
	"switchyard/pkg/logging"
)

// AddComponent registers the component resolving endpoints for scheme.
func (c *Context) AddComponent(scheme string, comp api.Component) error {
	if scheme == "" || comp == nil {
		return fmt.Errorf("component scheme and instance are required")
	}
	c.epMu.Lock()
	defer c.epMu.Unlock()
	if _, exists := c.components[scheme]; exists {
		return fmt.Errorf("component %s already registered", scheme)
	}
	c.components[scheme] = comp
	return nil
}

// Component returns the component registered for scheme.
func (c *Context) Component(scheme string) (api.Component, bool) {
	c.epMu.RLock()
	defer c.epMu.RUnlock()
	comp, ok := c.components[scheme]
	return comp, ok
}

// AddEndpoint registers ep under its URI, replacing nothing: registering a
// second endpoint for the same URI fails. The endpoint is started when the
// context is started.
func (c *Context) AddEndpoint(ctx context.Context, ep api.Endpoint) error {
	c.epMu.Lock()
	if _, exists := c.endpoints[ep.URI()]; exists {
		c.epMu.Unlock()
		return fmt.Errorf("endpoint %s already registered", ep.URI())
	}
	c.endpoints[ep.URI()] = ep
	c.epMu.Unlock()

	if c.lc.IsStarted() {
		return ep.Start(ctx)
	}
	return nil
}

// Endpoint returns the endpoint registered for uri, creating it through the
// component of its scheme when needed. Concurrent lookups of the same new
// URI create a single endpoint.
func (c *Context) Endpoint(ctx context.Context, uri string) (api.Endpoint, error) {
	c.epMu.RLock()
	ep, ok := c.endpoints[uri]
	c.epMu.RUnlock()
	if ok {
		return ep, nil
	}

	v, err, _ := c.epGroup.Do(uri, func() (any, error) {
		c.epMu.RLock()
		existing, ok := c.endpoints[uri]
		c.epMu.RUnlock()
		if ok {
			return existing, nil
		}

		scheme, _, found := strings.Cut(uri, ":")
		if !found || scheme == "" {
			return nil, fmt.Errorf("invalid endpoint uri %q", uri)
		}
		comp, ok := c.Component(scheme)
		if !ok {
			return nil, api.NewNotFoundError("component", scheme)
		}
		created, err := comp.CreateEndpoint(uri)
		if err != nil {
			return nil, fmt.Errorf("creating endpoint %s: %w", uri, err)
		}
		if err := c.AddEndpoint(ctx, created); err != nil {
			return nil, err
		}
		logging.Debug("Context", "Created endpoint %s", uri)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(api.Endpoint), nil
}

// Endpoints returns the registered endpoints sorted by URI.
func (c *Context) Endpoints() []api.Endpoint {
	c.epMu.RLock()
	defer c.epMu.RUnlock()
	out := make([]api.Endpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI() < out[j].URI() })
	return out
}

// removeEndpoint deregisters the endpoint of uri and reports it.
func (c *Context) removeEndpoint(uri string) (api.Endpoint, bool) {
	c.epMu.Lock()
	defer c.epMu.Unlock()
	ep, ok := c.endpoints[uri]
	delete(c.endpoints, uri)
	return ep, ok
}

func (c *Context) componentsSorted() []api.Component {
	c.epMu.RLock()
	defer c.epMu.RUnlock()
	schemes := make([]string, 0, len(c.components))
	for s := range c.components {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	out := make([]api.Component, 0, len(schemes))
	for _, s := range schemes {
		out = append(out, c.components[s])
	}
	return out
}

// stopEndpoints stops and shuts down every endpoint. Endpoints stay
// registered so the routes holding them can start again with the context.
func (c *Context) stopEndpoints(ctx context.Context) {
	for _, ep := range c.Endpoints() {
		if err := services.StopAndShutdownService(ctx, ep); err != nil {
			logging.WarnErr("Context", err, "Error stopping endpoint %s", ep.URI())
		}
	}
}

func (c *Context) stopComponents(ctx context.Context) {
	comps := c.componentsSorted()
	for i := len(comps) - 1; i >= 0; i-- {
		if err := services.StopAndShutdownService(ctx, comps[i]); err != nil {
			logging.WarnErr("Context", err, "Error stopping component %T", comps[i])
		}
	}
}
