package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/internal/telemetry"
)

// readLoop consumes frames from one connection until it fails or closes,
// then detaches the client from the engine. A panicking handler tears
// down this connection only; the recover keeps it away from the server.
func (s *Server) readLoop(ctx context.Context, c *client) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in websocket dispatch",
				logger.ConnID(c.connID),
				"panic", r)
		}
		s.engine.Disconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(s.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Websocket read ended", logger.ConnID(c.connID), logger.Err(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env events.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.Send(events.EventFileError, events.FileError{Message: "malformed frame: " + err.Error()})
			continue
		}
		s.dispatch(ctx, c, env)
	}
}

// bind counts the inbound event and decodes its payload into dst. On a
// malformed or invalid payload the sender gets a file-error and the
// frame is dropped; requests that carry an id get no ack in that case,
// the client side times the callback out.
func (s *Server) bind(ctx context.Context, c *client, env events.Envelope, dst any) bool {
	s.engine.Metrics().EventReceived(env.Event)
	if err := events.Decode(env.Data, dst); err != nil {
		telemetry.RecordError(ctx, err)
		c.Send(events.EventFileError, events.FileError{Message: err.Error()})
		return false
	}
	return true
}

// dispatch routes one decoded envelope to its engine operation.
//
// Each frame runs under its own span and an event-scoped log context, so
// the dispatch debug line and anything the engine logs through the
// context carry the room, user, and trace of the frame being handled.
//
// The username on the client is refreshed from every create-room and
// join-room payload before the engine runs, so the join broadcast and
// the member list carry the name the user just presented.
func (s *Server) dispatch(ctx context.Context, c *client, env events.Envelope) {
	lc := c.logContext().WithEvent(env.Event)

	ctx, span := telemetry.StartEventSpan(ctx, env.Event, lc.Room, lc.UserID,
		telemetry.ClientAddr(lc.RemoteAddr),
		telemetry.ConnID(c.connID))
	defer span.End()
	if env.ID != 0 {
		span.SetAttributes(telemetry.EventID(env.ID))
	}

	lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)
	defer func() {
		logger.DebugCtx(ctx, "Event dispatched", logger.DurationMs(lc.DurationMs()))
	}()

	switch env.Event {
	case events.EventCreateRoom:
		var req events.CreateRoomRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		c.setUsername(req.Username)
		ack := s.engine.CreateRoom(ctx, c, req)
		if ack.Success {
			c.bindRoom(ack.RoomCode)
		}
		if env.ID != 0 {
			c.ack(env.ID, ack)
		}

	case events.EventJoinRoom:
		var req events.JoinRoomRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		c.setUsername(req.Username)
		ack := s.engine.JoinRoom(ctx, c, req)
		if ack.Success {
			c.bindRoom(strings.ToUpper(strings.TrimSpace(req.RoomCode)))
		}
		if env.ID != 0 {
			c.ack(env.ID, ack)
		}

	case events.EventGetFiles:
		var req events.GetFilesRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		ack := s.engine.GetFiles(c, req)
		if env.ID != 0 {
			c.ack(env.ID, ack)
		}

	case events.EventGetFileContent:
		var req events.GetFileContentRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		ack := s.engine.GetFileContent(c, req)
		if env.ID != 0 {
			c.ack(env.ID, ack)
		}

	case events.EventGetWorkingDirectory:
		var req events.GetWorkingDirectoryRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		ack := s.engine.GetWorkingDirectory(c, req)
		if env.ID != 0 {
			c.ack(env.ID, ack)
		}

	case events.EventSwitchFile:
		var req events.SwitchFileRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.SwitchFile(c, req)

	case events.EventCodeChange:
		var req events.CodeChangeRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.CodeChange(c, req)

	case events.EventCreateFile:
		var req events.CreateFileRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.CreateFile(c, req)

	case events.EventCreateFolder:
		var req events.CreateFolderRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.CreateFolder(c, req)

	case events.EventDeleteItem:
		var req events.DeleteItemRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.DeleteItem(c, req)

	case events.EventRenameItem:
		var req events.RenameItemRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.RenameItem(c, req)

	case events.EventMoveItem:
		var req events.MoveItemRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.MoveItem(c, req)

	case events.EventToggleFolder:
		var req events.ToggleFolderRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.ToggleFolder(c, req)

	case events.EventTerminalInit:
		var req events.TerminalInitRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.TerminalInit(c, req)

	case events.EventTerminalInput:
		var req events.TerminalInputRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.TerminalInput(c, req)

	case events.EventTerminalResize:
		var req events.TerminalResizeRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.TerminalResize(c, req)

	case events.EventExecuteCommand:
		var req events.ExecuteCommandRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.ExecuteCommand(c, req)

	case events.EventClearTerminal:
		var req events.ClearTerminalRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.ClearTerminal(c, req)

	case events.EventKillProcess:
		var req events.KillProcessRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.KillProcess(c, req)

	case events.EventRunFile:
		var req events.RunFileRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.RunFile(c, req)

	case events.EventSaveAndRun:
		var req events.SaveAndRunRequest
		if !s.bind(ctx, c, env, &req) {
			return
		}
		s.engine.SaveAndRun(c, req)

	default:
		s.engine.Metrics().EventReceived("unknown")
		err := fmt.Errorf("unknown event: %s", env.Event)
		telemetry.RecordError(ctx, err)
		c.Send(events.EventFileError, events.FileError{Message: err.Error()})
	}
}
