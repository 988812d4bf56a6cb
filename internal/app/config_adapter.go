package app

import (
	"switchyard/internal/config"
	"switchyard/internal/engine"
	"switchyard/internal/shutdown"
	"switchyard/internal/supervising"
)

// engineConfig translates the file configuration into context options.
func engineConfig(cfg config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.Name = cfg.Name
	ec.AutoStartup = cfg.AutoStartup
	ec.Shutdown = shutdown.Config{
		Timeout:                  cfg.Shutdown.Timeout,
		ShutdownRoutesInOrder:    !cfg.Shutdown.ReverseOrder,
		PollInterval:             cfg.Shutdown.PollInterval,
		ShutdownNowOnTimeout:     cfg.Shutdown.ShutdownNowOnTimeout,
		SuppressLoggingOnTimeout: cfg.Shutdown.SuppressLoggingOnTimeout,
	}
	ec.AllowUseOriginalMessage = cfg.UnitOfWork.AllowUseOriginalMessage
	ec.UseBreadcrumb = cfg.UnitOfWork.UseBreadcrumb
	if cfg.Pool.Capacity > 0 {
		ec.PoolCapacity = cfg.Pool.Capacity
	}
	ec.MultiPoolCapacity = cfg.Pool.MultiPoolCapacity
	return ec
}

// supervisingConfig translates the supervising section.
func supervisingConfig(cfg config.SupervisingConfig) supervising.Config {
	sc := supervising.DefaultConfig()
	sc.InitialDelay = cfg.InitialDelay
	if cfg.BackOff != (config.BackOffConfig{}) {
		sc.BackOff = backOff(cfg.BackOff)
	}
	sc.IncludeRoutes = cfg.IncludeRoutes
	sc.ExcludeRoutes = cfg.ExcludeRoutes
	if len(cfg.RouteBackOffs) > 0 {
		sc.RouteBackOffs = make(map[string]supervising.BackOffConfig, len(cfg.RouteBackOffs))
		for id, b := range cfg.RouteBackOffs {
			sc.RouteBackOffs[id] = backOff(b)
		}
	}
	return sc
}

func backOff(b config.BackOffConfig) supervising.BackOffConfig {
	return supervising.BackOffConfig{
		Delay:          b.Delay,
		MaxDelay:       b.MaxDelay,
		MaxElapsedTime: b.MaxElapsedTime,
		MaxAttempts:    b.MaxAttempts,
		Multiplier:     b.Multiplier,
	}
}
