// Package app wires a switchyard process together.
//
// Bootstrap loads the configuration directory, builds the context with the
// memory and log components, installs the supervising route controller
// when enabled, registers the declared routes and prepares the admin API.
// Run then starts everything and blocks until the process is signalled,
// applying configuration changes to the running context in between.
//
// Lifecycle:
//
//	NewApplication  logging, config, services
//	Run             admin API, context, config watcher
//	<signal>        watcher, context (graceful), admin API
package app
