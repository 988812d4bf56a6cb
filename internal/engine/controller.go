package engine

import (
	"context"
	"time"

	"switchyard/internal/api"
)

// RouteController is the entry point for manual route operations. The
// default controller delegates to the context; a supervising controller
// wraps it to manage route startup on its own.
type RouteController interface {
	StartRoute(ctx context.Context, id string) error
	StopRoute(ctx context.Context, id string) error
	StopRouteWithTimeout(ctx context.Context, id string, timeout time.Duration, abortAfterTimeout bool) (bool, error)
	SuspendRoute(ctx context.Context, id string) error
	ResumeRoute(ctx context.Context, id string) error
	RouteStatus(id string) (api.ServiceStatus, bool)
	// IsSupervising reports whether the controller starts routes itself.
	IsSupervising() bool
}

// DefaultController passes every operation straight to its context.
type DefaultController struct {
	c *Context
}

// NewDefaultController returns the default controller of c.
func NewDefaultController(c *Context) *DefaultController {
	return &DefaultController{c: c}
}

// Context returns the controlled context.
func (d *DefaultController) Context() *Context { return d.c }

func (d *DefaultController) StartRoute(ctx context.Context, id string) error {
	return d.c.StartRoute(ctx, id)
}

func (d *DefaultController) StopRoute(ctx context.Context, id string) error {
	return d.c.StopRoute(ctx, id)
}

func (d *DefaultController) StopRouteWithTimeout(ctx context.Context, id string, timeout time.Duration, abortAfterTimeout bool) (bool, error) {
	return d.c.StopRouteWithTimeout(ctx, id, timeout, abortAfterTimeout)
}

func (d *DefaultController) SuspendRoute(ctx context.Context, id string) error {
	return d.c.SuspendRoute(ctx, id)
}

func (d *DefaultController) ResumeRoute(ctx context.Context, id string) error {
	return d.c.ResumeRoute(ctx, id)
}

func (d *DefaultController) RouteStatus(id string) (api.ServiceStatus, bool) {
	return d.c.RouteStatus(id)
}

func (d *DefaultController) IsSupervising() bool { return false }
