package engine

import (
	"context"
	"errors"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/internal/telemetry"
	"github.com/codehive-dev/codehive/pkg/hub"
	"github.com/codehive-dev/codehive/pkg/room"
)

// CreateRoom registers a room in the store and enters the creator. On
// success the creator additionally receives a room-created push carrying
// the generated code.
func (e *Engine) CreateRoom(ctx context.Context, c hub.Client, req events.CreateRoomRequest) events.CreateRoomAck {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRoomCreate)
	defer span.End()
	span.SetAttributes(telemetry.Username(req.Username))

	rm, err := room.CreateRoom(ctx, e.store, req.Password)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.Error("Failed to create room",
			logger.Username(req.Username),
			logger.Err(err))
		return events.CreateRoomAck{Success: false, Error: "Could not create room"}
	}
	span.SetAttributes(telemetry.Room(rm.Code))

	entry := e.enterRoom(c, rm.Code)
	if !entry.Success {
		return events.CreateRoomAck{Success: false, Error: entry.Error}
	}

	c.Send(events.EventRoomCreated, events.RoomCreated{RoomCode: rm.Code})
	logger.Info("Room created",
		logger.Room(rm.Code),
		logger.Username(c.Username()))
	return events.CreateRoomAck{Success: true, RoomCode: rm.Code}
}

// JoinRoom authenticates against the store and enters the room. Lookup
// and password failures come back in the reply, not as file-error pushes,
// so the client can render them on the join form.
func (e *Engine) JoinRoom(ctx context.Context, c hub.Client, req events.JoinRoomRequest) events.JoinRoomAck {
	code := normalizeCode(req.RoomCode)

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRoomJoin)
	defer span.End()
	span.SetAttributes(telemetry.Room(code), telemetry.Username(req.Username))

	rm, err := room.Authenticate(ctx, e.store, code, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrNotFound):
			return events.JoinRoomAck{Success: false, Error: "Room not found"}
		case errors.Is(err, room.ErrBadPassword):
			return events.JoinRoomAck{Success: false, Error: "Invalid password"}
		default:
			telemetry.RecordError(ctx, err)
			logger.Error("Room authentication failed",
				logger.Room(code),
				logger.Err(err))
			return events.JoinRoomAck{Success: false, Error: "Could not join room"}
		}
	}

	return e.enterRoom(c, rm.Code)
}

// enterRoom puts an authenticated client into a room, materializing it on
// first entry and spawning the member's shell. The reply carries the full
// tree and the member's active file; everyone else sees a user-joined
// push.
func (e *Engine) enterRoom(c hub.Client, code string) events.JoinRoomAck {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return events.JoinRoomAck{Success: false, Error: "Server is shutting down"}
	}
	lr := e.rooms[code]
	if lr == nil {
		var err error
		lr, err = e.materializeLocked(code)
		if err != nil {
			e.mu.Unlock()
			logger.Error("Failed to materialize room",
				logger.Room(code),
				logger.Err(err))
			return events.JoinRoomAck{Success: false, Error: "Could not prepare room workspace"}
		}
	}
	_, replaced := e.hub.Join(code, c)
	e.conns[c.ID()] = code
	if replaced != nil {
		delete(e.conns, replaced.ID())
	}
	members := e.hub.Count(code)
	e.mu.Unlock()

	lr.mu.Lock()
	if _, ok := lr.active[c.UserID()]; !ok {
		if first, ok := lr.tree.FirstFile(); ok {
			lr.active[c.UserID()] = first
		}
	}
	activeFile := lr.active[c.UserID()]
	snap := lr.tree.Snapshot()
	lr.mu.Unlock()

	if replaced != nil {
		replaced.Close()
		logger.Info("User reconnected",
			logger.Room(code),
			logger.User(c.UserID()),
			logger.ConnID(c.ID()))
	} else {
		e.hub.BroadcastExcept(code, c.ID(), events.EventUserJoined, events.UserJoined{
			Username: c.Username(),
			UserID:   c.UserID(),
		})
	}

	// Members get their shell at entry. A spawn failure degrades the
	// terminal pane only; the join itself stands.
	e.ensureShell(lr, c)

	e.metrics.SetMembers(code, members)
	logger.Info("User joined room",
		logger.Room(code),
		logger.User(c.UserID()),
		logger.Username(c.Username()),
		logger.Members(members))

	return events.JoinRoomAck{Success: true, Files: snap, ActiveFile: activeFile}
}

// Disconnect removes a departed connection from its room. The last member
// leaving tears the room down; otherwise the member's shell dies and the
// rest of the room sees a user-left push. Disconnects of connections that
// were already replaced by a reconnect fall through without side effects.
func (e *Engine) Disconnect(c hub.Client) {
	e.mu.Lock()
	code, ok := e.conns[c.ID()]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.conns, c.ID())

	removed, last := e.hub.Leave(code, c)
	lr := e.rooms[code]
	tornDown := false
	if removed && last && lr != nil {
		delete(e.rooms, code)
		e.teardownLocked(lr)
		tornDown = true
	}
	members := e.hub.Count(code)
	e.mu.Unlock()

	if !removed {
		return
	}

	if lr != nil && !tornDown {
		if lr.term.Has(c.UserID()) {
			lr.term.Kill(c.UserID())
			e.metrics.PTYClosed()
		}
		lr.mu.Lock()
		if !lr.closed {
			delete(lr.active, c.UserID())
		}
		lr.mu.Unlock()

		e.hub.Broadcast(code, events.EventUserLeft, events.UserLeft{
			Username: c.Username(),
			UserID:   c.UserID(),
		})
	}

	e.metrics.SetMembers(code, members)
	logger.Info("User left room",
		logger.Room(code),
		logger.User(c.UserID()),
		logger.Username(c.Username()),
		logger.Members(members))
}

// GetWorkingDirectory reports the absolute path of the room's working
// directory, where the member's shell starts.
func (e *Engine) GetWorkingDirectory(c hub.Client, req events.GetWorkingDirectoryRequest) events.GetWorkingDirectoryAck {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return events.GetWorkingDirectoryAck{}
	}
	return events.GetWorkingDirectoryAck{WorkingDirectory: lr.dir.Root()}
}
