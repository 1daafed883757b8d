// Package server implements the health and metrics HTTP servers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	GetStatus() map[string]string
}

// Config contains listener settings.
type Config struct {
	HealthEnabled  bool
	HealthPort     int
	LivenessPath   string
	ReadinessPath  string
	MetricsEnabled bool
	MetricsPort    int
	MetricsPath    string
}

// Server represents the HTTP server for health and metrics.
type Server struct {
	healthMux     *http.ServeMux
	healthServer  *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates the health and metrics servers. A disabled server is
// never started.
func NewServer(cfg Config, checker HealthChecker, registry *prometheus.Registry, logger *slog.Logger) (*Server, error) {
	if cfg.HealthEnabled && cfg.MetricsEnabled && cfg.HealthPort == cfg.MetricsPort {
		return nil, fmt.Errorf("health and metrics ports must differ, both are %d", cfg.HealthPort)
	}
	if cfg.LivenessPath == "" {
		cfg.LivenessPath = "/health/live"
	}
	if cfg.ReadinessPath == "" {
		cfg.ReadinessPath = "/health/ready"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{logger: logger, healthMux: http.NewServeMux()}

	s.healthMux.HandleFunc(cfg.LivenessPath, LivenessHandler(checker, logger))
	s.healthMux.HandleFunc(cfg.ReadinessPath, ReadinessHandler(checker, logger))
	if cfg.HealthEnabled {
		s.healthServer = newHTTPServer(cfg.HealthPort, s.healthMux)
	}

	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		s.metricsServer = newHTTPServer(cfg.MetricsPort, metricsMux)
	}

	return s, nil
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// HandleStatus serves fn's result as JSON on the health server at path.
func (s *Server) HandleStatus(path string, fn StatusFunc) {
	s.healthMux.HandleFunc(path, StatusHandler(fn, s.logger))
}

// HealthHandler returns the health server's handler.
func (s *Server) HealthHandler() http.Handler {
	return s.healthMux
}

// Start starts the enabled servers in the background.
func (s *Server) Start() {
	for name, srv := range s.servers() {
		go func() {
			s.logger.Info("starting "+name+" server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error(name+" server failed", "error", err)
			}
		}()
	}
}

// Shutdown gracefully shuts down the enabled servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	servers := s.servers()
	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			errChan <- srv.Shutdown(ctx)
		}()
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (s *Server) servers() map[string]*http.Server {
	servers := make(map[string]*http.Server, 2)
	if s.healthServer != nil {
		servers["health"] = s.healthServer
	}
	if s.metricsServer != nil {
		servers["metrics"] = s.metricsServer
	}
	return servers
}
