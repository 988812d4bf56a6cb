// Package logging provides subsystem-tagged structured logging for switchyard,
// built on the standard log/slog package.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Engine", "Started %d routes", n)
//	logging.Error("Supervising", err, "Failed to restart route %s", id)
//
// Route-scoped code tags entries with the route id:
//
//	log := logging.WithRoute("RouteService", route.ID())
//	log.Info("Warmed up")
//
// Before initialization only warnings and errors are written, to stderr.
package logging
