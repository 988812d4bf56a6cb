package services

import (
	"context"
	"errors"
	"fmt"

	"switchyard/internal/api"
)

// StartServices starts each service in order and stops at the first failure.
func StartServices(ctx context.Context, svcs ...api.Service) error {
	for _, s := range svcs {
		if s == nil {
			continue
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopServices stops every service in order. Failures do not prevent the
// remaining services from being stopped; they are joined into the result.
func StopServices(ctx context.Context, svcs ...api.Service) error {
	var errs []error
	for _, s := range svcs {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// StopAndShutdownService stops svc and shuts it down when it supports it.
func StopAndShutdownService(ctx context.Context, svc api.Service) error {
	if svc == nil {
		return nil
	}
	if sd, ok := svc.(api.ShutdownableService); ok {
		// Shutdown implies stop for lifecycle based services.
		return sd.Shutdown(ctx)
	}
	return svc.Stop(ctx)
}

// StopAndShutdownServices is StopAndShutdownService over svcs, best effort.
func StopAndShutdownServices(ctx context.Context, svcs ...api.Service) error {
	var errs []error
	for _, s := range svcs {
		if err := StopAndShutdownService(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("shutting down %T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// SuspendService suspends svc when it supports real suspension and stops it
// otherwise. It reports whether svc was suspended.
func SuspendService(ctx context.Context, svc api.Service) (bool, error) {
	if api.SuspendsConsumer(svc) {
		return true, svc.(api.SuspendableService).Suspend(ctx)
	}
	return false, svc.Stop(ctx)
}

// ResumeService resumes a suspended svc, or starts it when it was stopped.
// It reports whether svc was resumed.
func ResumeService(ctx context.Context, svc api.Service) (bool, error) {
	if s, ok := svc.(api.SuspendableService); ok && s.IsSuspended() {
		return true, s.Resume(ctx)
	}
	return false, svc.Start(ctx)
}

// StatusOf returns the status of a stateful service, or StatusInitialized
// when the service does not expose one.
func StatusOf(svc api.Service) api.ServiceStatus {
	if s, ok := svc.(api.StatefulService); ok {
		return s.Status()
	}
	return api.StatusInitialized
}

// IsStopped reports whether svc is known to be stopped. Services that do
// not expose a status are assumed stopped.
func IsStopped(svc api.Service) bool {
	return StatusOf(svc).IsStopped()
}

// FlattenChildren returns svc followed by all its descendants, depth first.
// Duplicates are skipped.
func FlattenChildren(svcs ...api.Service) []api.Service {
	var out []api.Service
	seen := make(map[api.Service]struct{})
	var walk func(s api.Service)
	walk = func(s api.Service) {
		if s == nil {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if p, ok := s.(api.ServiceWithChildren); ok {
			for _, c := range p.ChildServices() {
				walk(c)
			}
		}
	}
	for _, s := range svcs {
		walk(s)
	}
	return out
}
