package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for room operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrConnID     = "client.conn_id"

	// ========================================================================
	// Room & session attributes
	// ========================================================================
	AttrRoom     = "room.code"
	AttrMembers  = "room.members"
	AttrUserID   = "user.id"
	AttrUsername = "user.name"

	// ========================================================================
	// Event attributes
	// ========================================================================
	AttrEvent   = "event.name"
	AttrEventID = "event.id" // client-assigned ack correlation ID

	// ========================================================================
	// File tree attributes
	// ========================================================================
	AttrPath    = "fs.path"
	AttrOldPath = "fs.old_path"
	AttrNewPath = "fs.new_path"
	AttrSize    = "fs.size"

	// ========================================================================
	// Sync attributes
	// ========================================================================
	AttrOrigin    = "sync.origin" // editor, terminal
	AttrWatcherOp = "watcher.op"  // file-written, file-removed, dir-created, dir-removed

	// ========================================================================
	// Store attributes
	// ========================================================================
	AttrStoreBackend = "store.backend" // badger, sqlite, postgres
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for a dispatched client event; the event name is attached as
	// an attribute rather than baked into the span name so backends can group
	// by operation.
	SpanEventDispatch = "ws.dispatch"

	// Room lifecycle spans
	SpanRoomCreate = "room.create"
	SpanRoomJoin   = "room.join"

	// Watcher spans
	SpanWatcherEvent = "watcher.event"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ConnID returns an attribute for a connection identifier
func ConnID(id string) attribute.KeyValue {
	return attribute.String(AttrConnID, id)
}

// Room returns an attribute for a room code
func Room(code string) attribute.KeyValue {
	return attribute.String(AttrRoom, code)
}

// Members returns an attribute for a room member count
func Members(n int) attribute.KeyValue {
	return attribute.Int(AttrMembers, n)
}

// UserID returns an attribute for a user ID
func UserID(id string) attribute.KeyValue {
	return attribute.String(AttrUserID, id)
}

// Username returns an attribute for a display name
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Event returns an attribute for a wire event name
func Event(name string) attribute.KeyValue {
	return attribute.String(AttrEvent, name)
}

// EventID returns an attribute for a client-assigned ack correlation ID
func EventID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrEventID, int64(id))
}

// Path returns an attribute for a workspace-relative path
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// OldPath returns an attribute for a rename/move source path
func OldPath(path string) attribute.KeyValue {
	return attribute.String(AttrOldPath, path)
}

// NewPath returns an attribute for a rename/move destination path
func NewPath(path string) attribute.KeyValue {
	return attribute.String(AttrNewPath, path)
}

// Size returns an attribute for content size in bytes
func Size(n int) attribute.KeyValue {
	return attribute.Int(AttrSize, n)
}

// Origin returns an attribute for a sync origin (editor, terminal)
func Origin(o string) attribute.KeyValue {
	return attribute.String(AttrOrigin, o)
}

// WatcherOp returns an attribute for a filesystem watcher operation
func WatcherOp(op string) attribute.KeyValue {
	return attribute.String(AttrWatcherOp, op)
}

// StoreBackend returns an attribute for a room store backend
func StoreBackend(name string) attribute.KeyValue {
	return attribute.String(AttrStoreBackend, name)
}

// StartEventSpan starts a span for a dispatched client event.
// This is a convenience function that sets common attributes.
func StartEventSpan(ctx context.Context, event, room, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Event(event),
	}
	if room != "" {
		allAttrs = append(allAttrs, Room(room))
	}
	if userID != "" {
		allAttrs = append(allAttrs, UserID(userID))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanEventDispatch, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a room store operation.
func StartStoreSpan(ctx context.Context, operation, backend string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		StoreBackend(backend),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "store."+operation, trace.WithAttributes(allAttrs...))
}

// StartWatcherSpan starts a span for handling a filesystem watcher event.
func StartWatcherSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanWatcherEvent, trace.WithAttributes(attrs...))
}
