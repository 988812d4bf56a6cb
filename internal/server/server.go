package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"

	"switchyard/internal/api"
	"switchyard/internal/engine"
	"switchyard/internal/inflight"
	"switchyard/internal/metrics"
	"switchyard/pkg/logging"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second

	// maxGoroutines fails the liveness check when exceeded.
	maxGoroutines = 10000
)

// Engine is the part of a context the admin API reads and drives.
type Engine interface {
	Name() string
	IsStarted() bool
	RouteInfos() []api.RouteInfo
	RouteInfo(id string) (api.RouteInfo, bool)
	RouteController() engine.RouteController
	Inflight() *inflight.Repository
}

// Supervisor reports which routes a supervising controller manages.
type Supervisor interface {
	IsSupervised(id string) bool
}

// Config holds the dependencies of a Server.
type Config struct {
	Address string
	Engine  Engine
	// Supervisor is optional; without it no route is reported supervised.
	Supervisor Supervisor
	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.Metrics
}

// Server is the admin HTTP server.
type Server struct {
	cfg     Config
	handler http.Handler

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds the router and health checks.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	var health healthcheck.Handler
	if cfg.Metrics != nil {
		health = healthcheck.NewMetricsHandler(cfg.Metrics.Registry(), "switchyard")
	} else {
		health = healthcheck.NewHandler()
	}
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("context-started", s.contextStarted)
	health.AddReadinessCheck("routes-healthy", s.routesHealthy)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Get("/live", health.LiveEndpoint)
	r.Get("/ready", health.ReadyEndpoint)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/routes", s.listRoutes)
		r.Get("/routes/{id}", s.getRoute)
		r.Post("/routes/{id}/{action}", s.routeAction)
		r.Get("/inflight", s.listInflight)
	})

	s.handler = r
	return s
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("AdminServer", err, "Admin server stopped unexpectedly")
		}
	}()

	s.http, s.listener, s.done = srv, ln, done
	logging.Info("AdminServer", "Admin API listening on %s", ln.Addr())
	return nil
}

// Addr returns the address the server listens on, or the configured
// address before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.http, s.done
	s.http, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	logging.Info("AdminServer", "Shutting down admin API")
	err := srv.Shutdown(ctx)
	<-done
	return err
}

func (s *Server) contextStarted() error {
	if !s.cfg.Engine.IsStarted() {
		return fmt.Errorf("context %s is not started", s.cfg.Engine.Name())
	}
	return nil
}

// routesHealthy fails while any route carries an unhealthy error, which the
// supervising controller records once it gives up restarting a route.
func (s *Server) routesHealthy() error {
	var unhealthy []string
	for _, info := range s.cfg.Engine.RouteInfos() {
		if info.LastError != nil && info.LastError.Unhealthy {
			unhealthy = append(unhealthy, info.ID)
		}
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy routes: %v", unhealthy)
	}
	return nil
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug("AdminServer", "%s %s %d %dB %s [%s]",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
