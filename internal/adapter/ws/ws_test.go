package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/pkg/engine"
	"github.com/codehive-dev/codehive/pkg/room/badgerstore"
	"github.com/codehive-dev/codehive/pkg/terminal"
	"github.com/codehive-dev/codehive/pkg/watcher"
)

// wsFrame mirrors the wire shape of one outbound frame with the payload
// kept raw so each test can decode the part it cares about.
type wsFrame struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id"`
	Data  json.RawMessage `json:"data"`
}

func newSocketServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	store, err := badgerstore.New(badgerstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("badgerstore.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := engine.New(store, engine.Config{
		WorkspaceRoot: t.TempDir(),
		SyncTTL:       150 * time.Millisecond,
		Watcher: watcher.Config{
			Stability:    50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		},
		Terminal: terminal.Config{RespawnDelay: 50 * time.Millisecond},
	})
	t.Cleanup(eng.Close)

	srv := NewServer(Config{}, eng)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// dial opens a websocket against the test server. The cleanup closes the
// socket before the httptest server shuts down, so handlers never linger.
func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, id uint64, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "id": id, "data": data}); err != nil {
		t.Fatalf("WriteJSON(%s) error = %v", event, err)
	}
}

// readUntil consumes frames until pred matches one, skipping everything
// else that interleaves (files-update pushes, terminal noise).
func readUntil(t *testing.T, conn *websocket.Conn, what string, pred func(wsFrame) bool) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if pred(f) {
			return f
		}
	}
}

func readAck(t *testing.T, conn *websocket.Conn, id uint64) wsFrame {
	t.Helper()
	return readUntil(t, conn, "ack", func(f wsFrame) bool {
		return f.Event == events.EventAck && f.ID == id
	})
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()
	return readUntil(t, conn, event, func(f wsFrame) bool {
		return f.Event == event
	})
}

// createRoomOn drives a full create-room handshake and returns the code.
func createRoomOn(t *testing.T, conn *websocket.Conn, username string) string {
	t.Helper()
	sendEnvelope(t, conn, events.EventCreateRoom, 1, map[string]any{
		"username": username,
		"password": "hunter2",
	})
	var ack events.CreateRoomAck
	if err := json.Unmarshal(readAck(t, conn, 1).Data, &ack); err != nil {
		t.Fatalf("decoding create ack: %v", err)
	}
	if !ack.Success {
		t.Fatalf("create-room failed: %s", ack.Error)
	}
	if len(ack.RoomCode) != 6 {
		t.Fatalf("RoomCode = %q, want 6 characters", ack.RoomCode)
	}
	return ack.RoomCode
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newSocketServer(t)

	for _, path := range []string{"/health", "/health/ready"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decoding %s body: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || body.Status != "healthy" {
			t.Fatalf("GET %s = %d %q, want 200 healthy", path, resp.StatusCode, body.Status)
		}
	}
}

func TestCreateRoomOverSocket(t *testing.T) {
	_, ts := newSocketServer(t)
	conn := dial(t, ts)

	code := createRoomOn(t, conn, "alice")

	var created events.RoomCreated
	frame := readEvent(t, conn, events.EventRoomCreated)
	if err := json.Unmarshal(frame.Data, &created); err != nil {
		t.Fatalf("decoding room-created: %v", err)
	}
	if created.RoomCode != code {
		t.Fatalf("room-created code = %q, want %q", created.RoomCode, code)
	}
}

func TestJoinRoomFanOut(t *testing.T) {
	_, ts := newSocketServer(t)
	alice := dial(t, ts)
	bob := dial(t, ts)

	code := createRoomOn(t, alice, "alice")

	sendEnvelope(t, bob, events.EventJoinRoom, 2, map[string]any{
		"username": "bob",
		"roomCode": strings.ToLower(code),
		"password": "hunter2",
	})
	var join events.JoinRoomAck
	if err := json.Unmarshal(readAck(t, bob, 2).Data, &join); err != nil {
		t.Fatalf("decoding join ack: %v", err)
	}
	if !join.Success {
		t.Fatalf("join-room failed: %s", join.Error)
	}
	files, ok := join.Files.(map[string]any)
	if !ok {
		t.Fatalf("join ack files is %T, want object", join.Files)
	}
	if _, ok := files["main.js"]; !ok {
		t.Fatalf("join ack files = %v, want main.js entry", files)
	}
	if join.ActiveFile != "main.js" {
		t.Fatalf("ActiveFile = %q, want main.js", join.ActiveFile)
	}

	var joined events.UserJoined
	if err := json.Unmarshal(readEvent(t, alice, events.EventUserJoined).Data, &joined); err != nil {
		t.Fatalf("decoding user-joined: %v", err)
	}
	if joined.Username != "bob" {
		t.Fatalf("user-joined username = %q, want bob", joined.Username)
	}

	sendEnvelope(t, bob, events.EventCodeChange, 0, map[string]any{
		"roomCode": code,
		"fileName": "main.js",
		"code":     "console.log('over the wire')",
	})
	var synced events.FileSynced
	if err := json.Unmarshal(readEvent(t, alice, events.EventFileSynced).Data, &synced); err != nil {
		t.Fatalf("decoding file-synced: %v", err)
	}
	if synced.FileName != "main.js" || !strings.Contains(synced.Content, "over the wire") {
		t.Fatalf("file-synced = %+v, want main.js with new content", synced)
	}
}

func TestWrongPasswordOverSocket(t *testing.T) {
	_, ts := newSocketServer(t)
	alice := dial(t, ts)
	mallory := dial(t, ts)

	code := createRoomOn(t, alice, "alice")

	sendEnvelope(t, mallory, events.EventJoinRoom, 7, map[string]any{
		"username": "mallory",
		"roomCode": code,
		"password": "guess",
	})
	var join events.JoinRoomAck
	if err := json.Unmarshal(readAck(t, mallory, 7).Data, &join); err != nil {
		t.Fatalf("decoding join ack: %v", err)
	}
	if join.Success || join.Error != "Invalid password" {
		t.Fatalf("join ack = %+v, want Invalid password failure", join)
	}
}

func TestUnknownEventRejected(t *testing.T) {
	_, ts := newSocketServer(t)
	conn := dial(t, ts)

	sendEnvelope(t, conn, "teleport", 0, nil)

	var fe events.FileError
	if err := json.Unmarshal(readEvent(t, conn, events.EventFileError).Data, &fe); err != nil {
		t.Fatalf("decoding file-error: %v", err)
	}
	if !strings.Contains(fe.Message, "unknown event") {
		t.Fatalf("file-error = %q, want unknown event", fe.Message)
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	_, ts := newSocketServer(t)
	conn := dial(t, ts)

	// Password missing: validation fails before the engine is reached.
	sendEnvelope(t, conn, events.EventCreateRoom, 3, map[string]any{"username": "alice"})

	var fe events.FileError
	if err := json.Unmarshal(readEvent(t, conn, events.EventFileError).Data, &fe); err != nil {
		t.Fatalf("decoding file-error: %v", err)
	}
	if !strings.Contains(fe.Message, "invalid payload") {
		t.Fatalf("file-error = %q, want invalid payload", fe.Message)
	}
}

func TestCloseBroadcastsUserLeft(t *testing.T) {
	_, ts := newSocketServer(t)
	alice := dial(t, ts)
	bob := dial(t, ts)

	code := createRoomOn(t, alice, "alice")
	sendEnvelope(t, bob, events.EventJoinRoom, 2, map[string]any{
		"username": "bob",
		"roomCode": code,
		"password": "hunter2",
	})
	readAck(t, bob, 2)
	readEvent(t, alice, events.EventUserJoined)

	bob.Close()

	var left events.UserLeft
	if err := json.Unmarshal(readEvent(t, alice, events.EventUserLeft).Data, &left); err != nil {
		t.Fatalf("decoding user-left: %v", err)
	}
	if left.Username != "bob" {
		t.Fatalf("user-left username = %q, want bob", left.Username)
	}
}

func TestStopClosesConnections(t *testing.T) {
	srv, ts := newSocketServer(t)
	conn := dial(t, ts)
	createRoomOn(t, conn, "alice")

	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
