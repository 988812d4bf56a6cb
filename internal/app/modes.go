package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"switchyard/pkg/logging"
)

// stopGrace is added to the shutdown timeout to bound the whole stop.
const stopGrace = 15 * time.Second

// runServe starts the services and waits for cancellation or a signal.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
func runServe(ctx context.Context, cfg *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		logging.Error("Serve", err, "Failed to start")
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopGrace)
		defer cancel()
		_ = services.Stop(stopCtx)
		return err
	}
	if services.Server != nil {
		logging.Info("Serve", "Context %s started, admin API on %s. Press Ctrl+C to stop.", services.Context.Name(), services.Server.Addr())
	} else {
		logging.Info("Serve", "Context %s started. Press Ctrl+C to stop.", services.Context.Name())
	}

	<-ctx.Done()
	logging.Info("Serve", "--- Shutting down context %s ---", services.Context.Name())

	timeout := stopGrace
	if cfg.Switchyard != nil {
		timeout += cfg.Switchyard.Shutdown.Timeout
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return services.Stop(stopCtx)
}
