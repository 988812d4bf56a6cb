package app

import (
	"context"
	"fmt"
	"sync"

	"switchyard/internal/components/logsink"
	"switchyard/internal/components/memory"
	"switchyard/internal/config"
	"switchyard/internal/engine"
	"switchyard/internal/metrics"
	"switchyard/internal/server"
	"switchyard/internal/supervising"
	"switchyard/pkg/logging"
)

// Services holds everything a running switchyard process owns.
type Services struct {
	Context *engine.Context
	Metrics *metrics.Metrics
	Routes  *RouteManager

	// Supervisor is nil unless supervising is enabled.
	Supervisor *supervising.Controller
	// Server is nil when the admin address is empty.
	Server *server.Server
	// Watcher is nil unless configuration watching is enabled.
	Watcher *config.Watcher

	reloadMu sync.Mutex
	current  config.Config
}

// InitializeServices builds the context and its companions from cfg. The
// configuration in cfg.Switchyard must already be loaded and valid.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	sc := *cfg.Switchyard

	c, err := engine.New(engineConfig(sc))
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if err := c.AddComponent(memory.Scheme, memory.NewComponent(memory.Options{})); err != nil {
		return nil, err
	}
	if err := c.AddComponent(logsink.Scheme, logsink.NewComponent()); err != nil {
		return nil, err
	}

	m := metrics.New()
	c.Notifier().AddListener(m)
	if err := m.Watch(c, c.Inflight()); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &Services{
		Context: c,
		Metrics: m,
		Routes:  NewRouteManager(c),
		current: sc,
	}

	if sc.Supervising.Enabled {
		s.Supervisor, err = supervising.Install(c, supervisingConfig(sc.Supervising))
		if err != nil {
			return nil, fmt.Errorf("failed to install supervising controller: %w", err)
		}
	}

	if err := s.Routes.Add(ctx, sc.Routes...); err != nil {
		return nil, fmt.Errorf("failed to add routes: %w", err)
	}

	if sc.Admin.Address != "" {
		srvCfg := server.Config{Address: sc.Admin.Address, Engine: c, Metrics: m}
		if s.Supervisor != nil {
			srvCfg.Supervisor = s.Supervisor
		}
		s.Server = server.New(srvCfg)
	}

	if cfg.Watch && cfg.ConfigPath != "" {
		s.Watcher = config.NewWatcher(cfg.ConfigPath, config.DefaultDebounce, func(next config.Config, err error) {
			s.Reload(context.Background(), next, err)
		})
	}

	logging.Info("Bootstrap", "Initialized context %s with %d routes", c.Name(), len(sc.Routes))
	return s, nil
}

// Reload applies the route changes between the running configuration and
// next. Settings other than the route list take effect on restart only.
func (s *Services) Reload(ctx context.Context, next config.Config, err error) {
	if err != nil {
		logging.WarnErr("Reload", err, "Ignoring configuration change")
		return
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	diff := config.DiffRoutes(s.current.Routes, next.Routes)
	if diff.IsEmpty() {
		logging.Debug("Reload", "Configuration changed, routes unchanged")
		s.current = next
		return
	}
	if err := s.Routes.Apply(ctx, diff); err != nil {
		logging.WarnErr("Reload", err, "Some route changes could not be applied")
	}
	s.current = next
}

// Start starts the admin API, the context and the configuration watcher.
func (s *Services) Start(ctx context.Context) error {
	if s.Server != nil {
		if err := s.Server.Start(ctx); err != nil {
			return err
		}
	}
	if err := s.Context.Start(ctx); err != nil {
		return fmt.Errorf("failed to start context %s: %w", s.Context.Name(), err)
	}
	if s.Watcher != nil {
		if err := s.Watcher.Start(ctx); err != nil {
			logging.WarnErr("Bootstrap", err, "Configuration watching disabled")
			s.Watcher = nil
		}
	}
	return nil
}

// Stop stops the watcher, the context and the admin API, in that order.
func (s *Services) Stop(ctx context.Context) error {
	if s.Watcher != nil {
		s.Watcher.Stop()
	}
	err := s.Context.Stop(ctx)
	if s.Server != nil {
		if serr := s.Server.Stop(ctx); serr != nil {
			logging.WarnErr("Bootstrap", serr, "Error stopping admin API")
		}
	}
	return err
}
