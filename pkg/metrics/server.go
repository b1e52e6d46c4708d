package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codehive-dev/codehive/internal/logger"
)

// ============================================================================
// Metrics HTTP Server
// ============================================================================

// DefaultPort is the port the metrics server listens on when none is configured.
const DefaultPort = 9090

// ServerConfig configures the Prometheus metrics HTTP server.
type ServerConfig struct {
	// Port is the HTTP port for the metrics endpoint
	Port int

	// Path is the URL path the registry is exposed on (default "/metrics")
	Path string

	// ReadTimeout bounds the time spent reading a scrape request
	ReadTimeout time.Duration

	// WriteTimeout bounds the time spent writing a scrape response
	WriteTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// Server exposes the shared metrics registry over HTTP for Prometheus scraping.
//
// The server is created in a stopped state. Call Start() to begin serving.
// It supports graceful shutdown with a bounded timeout.
type Server struct {
	server       *http.Server
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates a metrics HTTP server backed by the shared registry.
//
// Returns nil if metrics collection has not been enabled via InitRegistry;
// callers can treat a nil server as "metrics disabled" and skip Start.
func NewServer(config ServerConfig) *Server {
	if !IsEnabled() {
		return nil
	}
	config.applyDefaults()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle(config.Path, promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the metrics server and blocks until the context is cancelled
// or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and returns.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an error
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "port", s.config.Port, "path", s.config.Path)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Metrics server shutdown signal received")
		// Don't use the cancelled ctx as it would cause immediate shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the metrics server.
//
// Stop is safe to call multiple times and safe to call concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error", "error", err)
		} else {
			logger.Info("Metrics server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
