package config

import (
	"slices"
	"time"
)

// Config is the top-level switchyard configuration.
type Config struct {
	Name        string            `yaml:"name,omitempty"`
	AutoStartup bool              `yaml:"autoStartup"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
	Pool        PoolConfig        `yaml:"pool"`
	UnitOfWork  UnitOfWorkConfig  `yaml:"unitOfWork"`
	Supervising SupervisingConfig `yaml:"supervising"`
	Admin       AdminConfig       `yaml:"admin"`
	Routes      []RouteConfig     `yaml:"routes,omitempty"`
}

// ShutdownConfig configures the graceful shutdown strategy.
type ShutdownConfig struct {
	Timeout                  time.Duration `yaml:"timeout"`
	ReverseOrder             bool          `yaml:"reverseOrder"`
	PollInterval             time.Duration `yaml:"pollInterval"`
	ShutdownNowOnTimeout     bool          `yaml:"shutdownNowOnTimeout,omitempty"`
	SuppressLoggingOnTimeout bool          `yaml:"suppressLoggingOnTimeout,omitempty"`
}

// PoolConfig sizes the producer pool.
type PoolConfig struct {
	Capacity          int `yaml:"capacity"`
	MultiPoolCapacity int `yaml:"multiPoolCapacity,omitempty"`
}

type UnitOfWorkConfig struct {
	AllowUseOriginalMessage bool `yaml:"allowUseOriginalMessage,omitempty"`
	UseBreadcrumb           bool `yaml:"useBreadcrumb,omitempty"`
}

// SupervisingConfig enables the supervising route controller.
type SupervisingConfig struct {
	Enabled       bool                     `yaml:"enabled"`
	InitialDelay  time.Duration            `yaml:"initialDelay,omitempty"`
	BackOff       BackOffConfig            `yaml:"backOff"`
	IncludeRoutes []string                 `yaml:"includeRoutes,omitempty"`
	ExcludeRoutes []string                 `yaml:"excludeRoutes,omitempty"`
	RouteBackOffs map[string]BackOffConfig `yaml:"routeBackOffs,omitempty"`
}

// BackOffConfig is a restart back-off. Zero fields mean unbounded.
type BackOffConfig struct {
	Delay          time.Duration `yaml:"delay,omitempty"`
	MaxDelay       time.Duration `yaml:"maxDelay,omitempty"`
	MaxElapsedTime time.Duration `yaml:"maxElapsedTime,omitempty"`
	MaxAttempts    int           `yaml:"maxAttempts,omitempty"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
}

// AdminConfig configures the admin HTTP server. An empty address disables it.
type AdminConfig struct {
	Address string `yaml:"address"`
}

// RouteConfig declares a route that forwards every exchange from its input
// to each of the To endpoints in turn.
type RouteConfig struct {
	ID           string   `yaml:"id"`
	From         string   `yaml:"from"`
	To           []string `yaml:"to,omitempty"`
	StartupOrder int      `yaml:"startupOrder,omitempty"`
	AutoStartup  *bool    `yaml:"autoStartup,omitempty"`
	Description  string   `yaml:"description,omitempty"`
}

// IsAutoStartup reports the route's auto-startup flag, true when unset.
func (r RouteConfig) IsAutoStartup() bool {
	return r.AutoStartup == nil || *r.AutoStartup
}

// Equal reports whether r and o declare the same route.
func (r RouteConfig) Equal(o RouteConfig) bool {
	return r.ID == o.ID &&
		r.From == o.From &&
		slices.Equal(r.To, o.To) &&
		r.StartupOrder == o.StartupOrder &&
		r.IsAutoStartup() == o.IsAutoStartup() &&
		r.Description == o.Description
}

// RouteDiff lists the route changes between two configurations.
type RouteDiff struct {
	Added   []RouteConfig
	Removed []RouteConfig
	Changed []RouteConfig
}

// IsEmpty reports whether nothing changed.
func (d RouteDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffRoutes compares two route lists by id. Changed holds the new
// declaration of routes present in both with different content.
func DiffRoutes(before, after []RouteConfig) RouteDiff {
	old := make(map[string]RouteConfig, len(before))
	for _, r := range before {
		old[r.ID] = r
	}
	var d RouteDiff
	seen := make(map[string]struct{}, len(after))
	for _, r := range after {
		seen[r.ID] = struct{}{}
		prev, ok := old[r.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, r)
		case !prev.Equal(r):
			d.Changed = append(d.Changed, r)
		}
	}
	for _, r := range before {
		if _, ok := seen[r.ID]; !ok {
			d.Removed = append(d.Removed, r)
		}
	}
	return d
}
