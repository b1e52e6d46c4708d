package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context
type LogContext struct {
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	Room       string    // Room code the connection has joined
	UserID     string    // User ID minted at join
	Username   string    // Display name presented at join
	Event      string    // Wire event currently being dispatched
	RemoteAddr string    // Client address (without port)
	StartTime  time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a client connection
func NewLogContext(remoteAddr string) *LogContext {
	return &LogContext{
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:    lc.TraceID,
		SpanID:     lc.SpanID,
		Room:       lc.Room,
		UserID:     lc.UserID,
		Username:   lc.Username,
		Event:      lc.Event,
		RemoteAddr: lc.RemoteAddr,
		StartTime:  lc.StartTime,
	}
}

// WithEvent returns a copy with the wire event set
func (lc *LogContext) WithEvent(event string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Event = event
		clone.StartTime = time.Now()
	}
	return clone
}

// WithRoom returns a copy with room membership info set
func (lc *LogContext) WithRoom(room, userID, username string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Room = room
		clone.UserID = userID
		clone.Username = username
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
