// Package config loads the switchyard configuration.
//
// Configuration lives in a single directory, ~/.config/switchyard by
// default:
//
//	config.yaml     context, shutdown, pool, supervising and admin settings
//	routes/*.yaml   one route definition per file
//
// Defaults are applied first and config.yaml overlays them; a missing file
// means defaults. Routes declared inline in config.yaml come before the
// route files, which are read in name order.
//
// # Hot reload
//
// Watcher observes the directory with fsnotify and reloads the
// configuration once changes settle. Callers apply the route changes
// returned by DiffRoutes to the running context.
//
// # Example
//
//	name: orders
//	shutdown:
//	  timeout: 30s
//	supervising:
//	  enabled: true
//	  backOff:
//	    delay: 2s
//	    maxAttempts: 5
//	routes:
//	  - id: intake
//	    from: memory:orders?workers=4
//	    to: [log:orders]
package config
