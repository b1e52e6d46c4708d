// Package ws is the websocket transport of the room engine.
//
// It upgrades HTTP connections on /ws, decodes the JSON event envelopes
// defined in internal/protocol/events, and routes them to engine
// operations. Each connection gets a connection id and a user id at
// upgrade time; the user id is what the engine and hub key sessions by,
// so a browser that reconnects gets a fresh identity while a frame sent
// on two sockets for the same user replaces the older socket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/pkg/engine"
)

// DefaultPort is the port the websocket server listens on when none is
// configured.
const DefaultPort = 8080

// Config configures the websocket server.
type Config struct {
	// Port is the HTTP port for the websocket and health endpoints
	Port int

	// PingInterval is how often idle connections are pinged
	PingInterval time.Duration

	// PongTimeout is how long a connection may stay silent before it is
	// considered dead (must exceed PingInterval)
	PongTimeout time.Duration

	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration

	// MaxMessageSize caps inbound frame size in bytes
	MaxMessageSize int64

	// SendBuffer is the per-client outbound queue length; a client that
	// falls this many frames behind is disconnected
	SendBuffer int

	// ShutdownTimeout bounds graceful shutdown once Start's context is
	// cancelled
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = 256
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server serves the websocket endpoint and the health probes.
//
// The server is created in a stopped state. Call Start() to begin
// serving. Open connections are tracked so Stop can close them; closing
// a connection makes its read loop exit, which detaches the user from
// the engine the same way a client-initiated disconnect does.
type Server struct {
	server   *http.Server
	engine   *engine.Engine
	config   Config
	upgrader websocket.Upgrader

	startTime time.Time

	mu      sync.Mutex
	clients map[string]*client
	closed  bool

	shutdownOnce sync.Once
}

// NewServer creates a websocket server on top of an engine.
func NewServer(config Config, eng *engine.Engine) *Server {
	config.applyDefaults()

	s := &Server{
		engine: eng,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Rooms are password-gated; the endpoint itself accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
		clients:   make(map[string]*client),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.liveness)
	r.Get("/health/ready", s.readiness)
	r.Get("/ws", s.handleSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: r,
	}
	return s
}

// Start starts the websocket server and blocks until the context is
// cancelled or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Websocket server listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Websocket server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("websocket server failed: %w", err)
	}
}

// Stop closes every open connection and shuts the HTTP server down.
//
// Safe to call multiple times and concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		open := make([]*client, 0, len(s.clients))
		for _, c := range s.clients {
			open = append(open, c)
		}
		s.clients = make(map[string]*client)
		s.mu.Unlock()

		if len(open) > 0 {
			logger.Info("Closing websocket connections", "count", len(open))
		}
		for _, c := range open {
			c.Close()
		}

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("websocket server shutdown error: %w", err)
			logger.Error("Websocket server shutdown error", logger.Err(err))
		} else {
			logger.Info("Websocket server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}

// Handler exposes the router, mainly so tests can mount it on httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleSocket upgrades the request and runs the connection until it
// drops. The read loop runs on the handler goroutine; writes happen on
// the client's own pump.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", logger.Addr(r.RemoteAddr), logger.Err(err))
		return
	}

	c := newClient(conn, uuid.New().String(), uuid.New().String(), r.RemoteAddr, connConfig{
		writeWait:  s.config.WriteTimeout,
		pongWait:   s.config.PongTimeout,
		pingPeriod: s.config.PingInterval,
		sendBuffer: s.config.SendBuffer,
	}, s.engine.Metrics())

	if !s.track(c) {
		c.Close()
		return
	}

	logger.Info("Websocket connected",
		logger.ConnID(c.connID),
		logger.User(c.userID),
		logger.Addr(r.RemoteAddr))

	go c.writePump()
	s.readLoop(r.Context(), c)

	s.untrack(c)

	// The log context names the room the user last joined, if any.
	lc := c.logContext()
	logger.InfoCtx(logger.WithContext(context.Background(), lc),
		"Websocket disconnected",
		logger.ConnID(c.connID),
		logger.DurationMs(lc.DurationMs()))
}

func (s *Server) track(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.connID] = c
	return true
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	delete(s.clients, c.connID)
	s.mu.Unlock()
}

// healthResponse is the body of both health probes.
type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func writeHealth(w http.ResponseWriter, status int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("Failed to write health response", logger.Err(err))
	}
}

// liveness handles GET /health.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(s.startTime)
	writeHealth(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"service":    "codehive",
			"started_at": s.startTime.UTC().Format(time.RFC3339),
			"uptime":     uptime.Round(time.Second).String(),
		},
	})
}

// readiness handles GET /health/ready.
func (s *Server) readiness(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil {
		writeHealth(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	s.mu.Lock()
	conns := len(s.clients)
	s.mu.Unlock()

	writeHealth(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"rooms":       s.engine.RoomCount(),
			"connections": conns,
		},
	})
}
