package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so room activity can be
// aggregated and queried by room code, user, and event name.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Room & Session
	// ========================================================================
	KeyRoom     = "room"     // Room code (6-char identifier)
	KeyUser     = "user"     // User ID (connection-scoped UUID)
	KeyUsername = "username" // Display name presented at join
	KeyConnID   = "conn_id"  // WebSocket connection identifier
	KeyEvent    = "event"    // Wire event name (code-change, run-file, etc.)
	KeyMembers  = "members"  // Member count after a join/leave transition

	// ========================================================================
	// File Tree & Working Directory
	// ========================================================================
	KeyPath      = "path"      // Workspace-relative path
	KeyOldPath   = "old_path"  // Source path for rename/move operations
	KeyNewPath   = "new_path"  // Destination path for rename/move operations
	KeyOrigin    = "origin"    // Mutation origin: editor, terminal
	KeyExtension = "extension" // File extension (lowercase, no dot)
	KeySize      = "size"      // Content size in bytes

	// ========================================================================
	// Terminal & Execution
	// ========================================================================
	KeyCommand = "command" // Shell command dispatched to a PTY
	KeyCols    = "cols"    // Terminal width in columns
	KeyRows    = "rows"    // Terminal height in rows
	KeyShell   = "shell"   // Shell binary backing a PTY session

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyOp         = "op"          // Sub-operation type (watcher op, store op)
	KeyBackend    = "backend"     // Store backend: badger, sqlite, postgres
	KeyAddr       = "addr"        // Listen or remote network address
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Room returns a slog.Attr for a room code
func Room(code string) slog.Attr {
	return slog.String(KeyRoom, code)
}

// User returns a slog.Attr for a user ID
func User(id string) slog.Attr {
	return slog.String(KeyUser, id)
}

// Username returns a slog.Attr for a display name
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// ConnID returns a slog.Attr for a connection identifier
func ConnID(id string) slog.Attr {
	return slog.String(KeyConnID, id)
}

// Event returns a slog.Attr for a wire event name
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// Members returns a slog.Attr for a room member count
func Members(n int) slog.Attr {
	return slog.Int(KeyMembers, n)
}

// Path returns a slog.Attr for a workspace-relative path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// OldPath returns a slog.Attr for the source path in rename/move operations
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path in rename/move operations
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// Origin returns a slog.Attr for a mutation origin (editor, terminal)
func Origin(o string) slog.Attr {
	return slog.String(KeyOrigin, o)
}

// Extension returns a slog.Attr for a file extension
func Extension(ext string) slog.Attr {
	return slog.String(KeyExtension, ext)
}

// Size returns a slog.Attr for a content size in bytes
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

// Command returns a slog.Attr for a shell command
func Command(cmd string) slog.Attr {
	return slog.String(KeyCommand, cmd)
}

// Cols returns a slog.Attr for terminal width
func Cols(n uint16) slog.Attr {
	return slog.Any(KeyCols, n)
}

// Rows returns a slog.Attr for terminal height
func Rows(n uint16) slog.Attr {
	return slog.Any(KeyRows, n)
}

// Shell returns a slog.Attr for the shell binary of a PTY session
func Shell(path string) slog.Attr {
	return slog.String(KeyShell, path)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Op returns a slog.Attr for a sub-operation type
func Op(op string) slog.Attr {
	return slog.String(KeyOp, op)
}

// Backend returns a slog.Attr for a store backend name
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// Addr returns a slog.Attr for a network address
func Addr(addr string) slog.Attr {
	return slog.String(KeyAddr, addr)
}
