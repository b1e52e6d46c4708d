package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/pkg/metrics"
)

// client is one upgraded websocket connection. It implements hub.Client.
//
// All outbound traffic is funneled through the send channel and written by
// a single writePump goroutine, which is what lets Send stay non-blocking
// and keeps per-client frame order intact. A client that stops draining
// its socket fills the channel and is disconnected rather than allowed to
// stall the room it belongs to.
type client struct {
	conn *websocket.Conn
	cfg  connConfig

	connID string
	userID string

	mu       sync.RWMutex
	username string
	lc       *logger.LogContext

	send    chan []byte
	done    chan struct{}
	closing sync.Once

	metrics *metrics.RoomMetrics
}

// connConfig carries the per-connection tunables resolved by the server.
type connConfig struct {
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	sendBuffer int
}

func newClient(conn *websocket.Conn, connID, userID, remoteAddr string, cfg connConfig, m *metrics.RoomMetrics) *client {
	return &client{
		conn:    conn,
		cfg:     cfg,
		connID:  connID,
		userID:  userID,
		lc:      logger.NewLogContext(remoteAddr),
		send:    make(chan []byte, cfg.sendBuffer),
		done:    make(chan struct{}),
		metrics: m,
	}
}

// ID returns the connection identifier.
func (c *client) ID() string { return c.connID }

// UserID returns the user identifier minted at upgrade time.
func (c *client) UserID() string { return c.userID }

// Username returns the display name from the latest join or create.
func (c *client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *client) setUsername(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

// logContext returns the connection's logging context. The room fields
// stay empty until bindRoom runs.
func (c *client) logContext() *logger.LogContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lc
}

// bindRoom stamps room membership onto the logging context so every
// later dispatch log carries the room, user, and display name.
func (c *client) bindRoom(code string) {
	c.mu.Lock()
	c.lc = c.lc.WithRoom(code, c.userID, c.username)
	c.mu.Unlock()
}

// Send queues an outbound event frame. It never blocks: when the send
// buffer is full the client is treated as a slow consumer and closed.
func (c *client) Send(event string, payload any) {
	c.push(events.Frame{Event: event, Data: payload})
}

// ack queues the reply frame for an inbound frame that carried an id.
func (c *client) ack(id uint64, payload any) {
	c.push(events.Frame{Event: events.EventAck, ID: id, Data: payload})
}

func (c *client) push(f events.Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		logger.Error("Failed to encode outbound frame",
			logger.ConnID(c.connID),
			logger.Event(f.Event),
			logger.Err(err))
		return
	}

	select {
	case <-c.done:
		return
	case c.send <- raw:
		c.metrics.EventSent(f.Event)
	default:
		logger.Warn("Dropping slow websocket consumer",
			logger.ConnID(c.connID),
			logger.User(c.userID),
			logger.Event(f.Event))
		c.Close()
	}
}

// Close shuts the connection down. Idempotent; safe from any goroutine.
// Closing the underlying conn unblocks both the read loop and any write
// in flight, which is how the pumps learn about the shutdown.
func (c *client) Close() {
	c.closing.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			logger.Debug("Websocket close", logger.ConnID(c.connID), logger.Err(err))
		}
	})
}

// writePump is the sole writer of the websocket. It drains the send
// channel and keeps the connection alive with periodic pings. Exits when
// Close fires or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.Debug("Websocket write failed",
					logger.ConnID(c.connID),
					logger.Err(err))
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
