// Package services contains the building blocks shared by every service
// implementation: the Lifecycle state machine, best-effort start/stop
// helpers driven by the capability interfaces in package api, and the
// Registry of context-level services.
package services
