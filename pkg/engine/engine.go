// Package engine is the room engine: it owns every live room and carries
// each client event through the full pipeline of authentication, tree
// mutation, working-directory mirroring, and fan-out.
//
// A room becomes live when its first user enters and is torn down when its
// last user leaves. While live it holds the in-memory file tree, the
// per-user active-file map, a working directory on disk, a shell manager,
// and a filesystem watcher feeding disk changes back into the tree. The
// sync arbiter sits between the two mirrors so that a write flowing one
// way is not replayed when its echo comes back the other way.
//
// Locking is two-level. The engine mutex guards the room and connection
// registries and serializes room lifecycle, including the disk setup and
// teardown of working directories. Each live room's own mutex guards its
// tree and active-file map and is never held across disk writes or
// fan-out. Watcher handlers and terminal callbacks must not take the
// engine mutex: teardown closes the watcher while holding it and waits
// for in-flight handlers to drain.
package engine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/pkg/arbiter"
	"github.com/codehive-dev/codehive/pkg/hub"
	"github.com/codehive-dev/codehive/pkg/metrics"
	"github.com/codehive-dev/codehive/pkg/room"
	"github.com/codehive-dev/codehive/pkg/terminal"
	"github.com/codehive-dev/codehive/pkg/tree"
	"github.com/codehive-dev/codehive/pkg/watcher"
	"github.com/codehive-dev/codehive/pkg/workspace"
)

// Config tunes the engine.
type Config struct {
	// WorkspaceRoot is the directory under which per-room working
	// directories are created. Defaults to the system temp directory.
	WorkspaceRoot string

	// SyncTTL is how long a claimed sync token suppresses the opposite
	// write direction. Zero means arbiter.DefaultTTL.
	SyncTTL time.Duration

	// Watcher tunes write stabilization for the per-room watchers.
	Watcher watcher.Config

	// Terminal tunes shell spawning for the per-room shell managers.
	Terminal terminal.Config
}

// Engine routes client events into rooms.
type Engine struct {
	store   room.Store
	hub     *hub.Hub
	arb     *arbiter.Arbiter
	metrics *metrics.RoomMetrics
	cfg     Config

	mu     sync.Mutex
	rooms  map[string]*liveRoom
	conns  map[string]string // connection ID -> room code
	closed bool
}

// liveRoom is the in-memory state of one room with members.
type liveRoom struct {
	code string
	dir  *workspace.Dir
	term *terminal.Manager

	// watch is set once during materialization and read-only after.
	watch *watcher.Watcher

	mu     sync.Mutex
	tree   *tree.Tree
	active map[string]string // user ID -> active file path
	closed bool
}

// New creates an engine on top of a room store. The store outlives the
// engine; Close does not close it.
func New(store room.Store, cfg Config) *Engine {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	return &Engine{
		store:   store,
		hub:     hub.New(),
		arb:     arbiter.New(cfg.SyncTTL),
		metrics: metrics.NewRoomMetrics(),
		cfg:     cfg,
		rooms:   make(map[string]*liveRoom),
		conns:   make(map[string]string),
	}
}

// Close tears down every live room and rejects further entry.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	live := make([]*liveRoom, 0, len(e.rooms))
	for _, lr := range e.rooms {
		live = append(live, lr)
	}
	e.rooms = make(map[string]*liveRoom)
	e.conns = make(map[string]string)
	for _, lr := range live {
		e.teardownLocked(lr)
	}
	e.mu.Unlock()

	e.arb.Stop()
	logger.Info("Engine closed")
}

// Metrics returns the engine's metrics handle so transports can count
// their traffic on the same collectors. May return nil when metrics are
// disabled; all RoomMetrics methods tolerate the nil receiver.
func (e *Engine) Metrics() *metrics.RoomMetrics {
	return e.metrics
}

// RoomCount returns the number of rooms currently materialized.
func (e *Engine) RoomCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}

// normalizeCode canonicalizes a client-supplied room code.
func normalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// roomByCode returns the live room for a code, or nil.
func (e *Engine) roomByCode(code string) *liveRoom {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rooms[code]
}

// member resolves the live room a request targets and verifies the sender
// belongs to it. On failure the sender gets a file-error and nil is
// returned.
func (e *Engine) member(c hub.Client, rawCode string) *liveRoom {
	code := normalizeCode(rawCode)
	lr := e.roomByCode(code)
	if lr == nil || !e.hub.IsMember(code, c.UserID()) {
		c.Send(events.EventFileError, events.FileError{
			Message: fmt.Sprintf("not joined to room %s", code),
		})
		return nil
	}
	return lr
}

// materializeLocked brings a room live: a cleaned working directory seeded
// from a fresh default tree, a shell manager, and a filesystem watcher.
// The watcher starts last so the seed writes produce no events. Callers
// hold the engine mutex.
func (e *Engine) materializeLocked(code string) (*liveRoom, error) {
	// A directory left behind by a crash would leak into the new tree
	// through the watcher's directory scan.
	if err := workspace.Clean(e.cfg.WorkspaceRoot, code); err != nil {
		logger.Warn("Failed to clear stale working directory",
			logger.Room(code),
			logger.Err(err))
	}

	dir, err := workspace.New(e.cfg.WorkspaceRoot, code)
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	lr := &liveRoom{
		code:   code,
		dir:    dir,
		tree:   tree.NewWithDefaultFile(),
		active: make(map[string]string),
	}

	for _, path := range lr.tree.Files() {
		content, cerr := lr.tree.FileContent(path)
		if cerr != nil {
			continue
		}
		if _, werr := dir.WriteFile(path, content); werr != nil {
			logger.Warn("Failed to seed working directory",
				logger.Room(code),
				logger.Path(path),
				logger.Err(werr))
		}
	}

	lr.term = terminal.NewManager(e.cfg.Terminal,
		func(userID, data string) {
			e.hub.SendToUser(code, userID, events.EventTerminalOutput, data)
		},
		func(userID string) bool {
			return e.hub.IsMember(code, userID)
		},
	)

	w, err := watcher.New(dir.Root(), e.cfg.Watcher, func(ev watcher.Event) {
		e.handleWatch(lr, ev)
	})
	if err != nil {
		lr.term.Close()
		if cerr := dir.Cleanup(); cerr != nil {
			logger.Warn("Failed to remove working directory",
				logger.Room(code),
				logger.Err(cerr))
		}
		return nil, fmt.Errorf("failed to start filesystem watcher: %w", err)
	}
	lr.watch = w

	e.rooms[code] = lr
	e.metrics.RoomOpened()
	logger.Info("Room materialized",
		logger.Room(code),
		logger.Path(dir.Root()))
	return lr, nil
}

// teardownLocked dismantles a live room after its last user leaves. The
// closed flag goes up first so watcher handlers racing the teardown bail
// out before touching the dismantled state. Callers hold the engine mutex
// and have already removed the room from the registry.
func (e *Engine) teardownLocked(lr *liveRoom) {
	lr.mu.Lock()
	lr.closed = true
	lr.mu.Unlock()

	if err := lr.watch.Close(); err != nil {
		logger.Debug("Watcher close reported error",
			logger.Room(lr.code),
			logger.Err(err))
	}

	shells := lr.term.Count()
	lr.term.Close()
	for i := 0; i < shells; i++ {
		e.metrics.PTYClosed()
	}

	if err := lr.dir.Cleanup(); err != nil {
		logger.Warn("Failed to remove working directory",
			logger.Room(lr.code),
			logger.Err(err))
	}

	e.arb.ReleaseRoom(lr.code)
	e.metrics.RoomClosed(lr.code)
	logger.Info("Room closed", logger.Room(lr.code))
}
