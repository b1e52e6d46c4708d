package engine

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/pkg/room/badgerstore"
	"github.com/codehive-dev/codehive/pkg/terminal"
	"github.com/codehive-dev/codehive/pkg/tree"
	"github.com/codehive-dev/codehive/pkg/watcher"
	"github.com/codehive-dev/codehive/pkg/workspace"
)

const testPassword = "hunter2"

// fakeClient is one connected endpoint recording everything sent to it.
type fakeClient struct {
	id       string
	userID   string
	username string

	mu     sync.Mutex
	frames []sentFrame
	closed bool
}

type sentFrame struct {
	event   string
	payload any
}

func newClient(name string) *fakeClient {
	return &fakeClient{
		id:       "conn-" + name,
		userID:   "user-" + name,
		username: name,
	}
}

func (c *fakeClient) ID() string       { return c.id }
func (c *fakeClient) UserID() string   { return c.userID }
func (c *fakeClient) Username() string { return c.username }

func (c *fakeClient) Send(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, sentFrame{event: event, payload: payload})
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.event == event {
			n++
		}
	}
	return n
}

func (c *fakeClient) last(event string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].event == event {
			return c.frames[i].payload, true
		}
	}
	return nil, false
}

// waitFor polls until the client has seen the event at least want times.
// Only the watcher and shell paths are asynchronous; editor-op fan-out is
// synchronous and never needs this.
func (c *fakeClient) waitFor(t *testing.T, event string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count(event) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never saw %d %q events; got %d", want, event, c.count(event))
}

// terminalOutput concatenates all terminal-output payloads.
func (c *fakeClient) terminalOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for _, f := range c.frames {
		if f.event != events.EventTerminalOutput {
			continue
		}
		if s, ok := f.payload.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

func (c *fakeClient) waitForOutput(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(c.terminalOutput(), substr) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("terminal output never contained %q; got %q", substr, c.terminalOutput())
}

// errorContains reports whether any file-error mentioned the substring.
func (c *fakeClient) errorContains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		if f.event != events.EventFileError {
			continue
		}
		if fe, ok := f.payload.(events.FileError); ok && strings.Contains(fe.Message, substr) {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	store, err := badgerstore.New(badgerstore.Config{InMemory: true})
	if err != nil {
		t.Fatalf("badgerstore.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	e := New(store, Config{
		WorkspaceRoot: t.TempDir(),
		SyncTTL:       150 * time.Millisecond,
		Watcher: watcher.Config{
			Stability:    50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		},
		Terminal: terminal.Config{RespawnDelay: 50 * time.Millisecond},
	})
	t.Cleanup(e.Close)
	return e
}

func createTestRoom(t *testing.T, e *Engine, c *fakeClient) string {
	t.Helper()
	ack := e.CreateRoom(context.Background(), c, events.CreateRoomRequest{
		Username: c.username,
		Password: testPassword,
	})
	if !ack.Success {
		t.Fatalf("CreateRoom() failed: %s", ack.Error)
	}
	return ack.RoomCode
}

func joinTestRoom(t *testing.T, e *Engine, c *fakeClient, code string) events.JoinRoomAck {
	t.Helper()
	ack := e.JoinRoom(context.Background(), c, events.JoinRoomRequest{
		Username: c.username,
		RoomCode: code,
		Password: testPassword,
	})
	if !ack.Success {
		t.Fatalf("JoinRoom(%q) failed: %s", code, ack.Error)
	}
	return ack
}

// snapshotOf unwraps the tree snapshot carried by an ack or files-update.
func snapshotOf(t *testing.T, payload any) tree.Snapshot {
	t.Helper()
	snap, ok := payload.(tree.Snapshot)
	if !ok {
		t.Fatalf("payload is %T, want tree.Snapshot", payload)
	}
	return snap
}

// ============================================================================
// Session Lifecycle
// ============================================================================

func TestCreateRoomEntersCreator(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")

	code := createTestRoom(t, e, alice)
	if len(code) != 6 {
		t.Errorf("room code %q, want 6 characters", code)
	}
	if alice.count(events.EventRoomCreated) != 1 {
		t.Error("creator missed the room-created push")
	}

	if _, err := e.store.Get(context.Background(), code); err != nil {
		t.Errorf("store.Get(%q) error = %v", code, err)
	}
	if e.roomByCode(code) == nil {
		t.Fatal("room not live after create")
	}

	seed := workspace.PathFor(e.cfg.WorkspaceRoot, code) + "/" + tree.DefaultFileName
	data, err := os.ReadFile(seed)
	if err != nil {
		t.Fatalf("seed file missing on disk: %v", err)
	}
	if string(data) != tree.DefaultFileContent {
		t.Errorf("seed content = %q, want %q", data, tree.DefaultFileContent)
	}
}

func TestJoinRoomUnknownCode(t *testing.T) {
	e := newTestEngine(t)

	ack := e.JoinRoom(context.Background(), newClient("bob"), events.JoinRoomRequest{
		Username: "bob",
		RoomCode: "ZZZZZZ",
		Password: testPassword,
	})
	if ack.Success {
		t.Fatal("join of unknown room succeeded")
	}
	if ack.Error != "Room not found" {
		t.Errorf("Error = %q, want %q", ack.Error, "Room not found")
	}
	if e.roomByCode("ZZZZZZ") != nil {
		t.Error("failed join materialized a room")
	}
}

func TestJoinRoomWrongPassword(t *testing.T) {
	e := newTestEngine(t)
	code := createTestRoom(t, e, newClient("alice"))

	ack := e.JoinRoom(context.Background(), newClient("bob"), events.JoinRoomRequest{
		Username: "bob",
		RoomCode: code,
		Password: "wrong",
	})
	if ack.Success {
		t.Fatal("join with wrong password succeeded")
	}
	if ack.Error != "Invalid password" {
		t.Errorf("Error = %q, want %q", ack.Error, "Invalid password")
	}
}

func TestJoinRoomDeliversTree(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	bob := newClient("bob")
	ack := joinTestRoom(t, e, bob, strings.ToLower(code)) // codes match case-insensitively

	snap := snapshotOf(t, ack.Files)
	if _, ok := snap.Get(tree.DefaultFileName); !ok {
		t.Errorf("joined tree lacks %s", tree.DefaultFileName)
	}
	if ack.ActiveFile != tree.DefaultFileName {
		t.Errorf("ActiveFile = %q, want %q", ack.ActiveFile, tree.DefaultFileName)
	}

	if alice.count(events.EventUserJoined) != 1 {
		t.Error("existing member missed user-joined")
	}
	if payload, _ := alice.last(events.EventUserJoined); payload.(events.UserJoined).Username != "bob" {
		t.Errorf("user-joined payload = %+v", payload)
	}
	if bob.count(events.EventUserJoined) != 0 {
		t.Error("joiner received their own user-joined")
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	again := &fakeClient{id: "conn-alice-2", userID: alice.userID, username: alice.username}
	joinTestRoom(t, e, again, code)

	if !alice.isClosed() {
		t.Error("replaced connection was not closed")
	}
	if bob.count(events.EventUserJoined) != 1 {
		t.Error("reconnect broadcast a second user-joined")
	}
	if e.hub.Count(code) != 2 {
		t.Errorf("member count = %d after reconnect, want 2", e.hub.Count(code))
	}

	// The stale connection's disconnect must not evict the fresh one.
	e.Disconnect(alice)
	if !e.hub.IsMember(code, alice.userID) {
		t.Error("stale disconnect removed the fresh connection")
	}
}

func TestLastMemberLeavingTearsDownRoom(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	root := workspace.PathFor(e.cfg.WorkspaceRoot, code)

	e.Disconnect(alice)

	if e.roomByCode(code) != nil {
		t.Fatal("room still live after last member left")
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("working directory still on disk: %v", err)
	}

	// Rejoining brings the room back with a fresh default tree.
	ack := joinTestRoom(t, e, alice, code)
	snap := snapshotOf(t, ack.Files)
	if snap.Len() != 1 {
		t.Errorf("rematerialized tree has %d nodes, want 1", snap.Len())
	}
}

func TestDisconnectNotifiesOthers(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.Disconnect(bob)

	if alice.count(events.EventUserLeft) != 1 {
		t.Fatal("remaining member missed user-left")
	}
	if payload, _ := alice.last(events.EventUserLeft); payload.(events.UserLeft).Username != "bob" {
		t.Errorf("user-left payload = %+v", payload)
	}
	if e.roomByCode(code) == nil {
		t.Error("room torn down while a member remained")
	}
}

func TestNonMemberRejected(t *testing.T) {
	e := newTestEngine(t)
	code := createTestRoom(t, e, newClient("alice"))

	mallory := newClient("mallory")
	ack := e.GetFiles(mallory, events.GetFilesRequest{RoomCode: code})
	if ack.Files != nil {
		t.Error("non-member received the tree")
	}
	if !mallory.errorContains("not joined") {
		t.Error("non-member got no file-error")
	}
}

// ============================================================================
// Reads
// ============================================================================

func TestGetFileContent(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	ack := e.GetFileContent(alice, events.GetFileContentRequest{
		RoomCode: code,
		FileName: tree.DefaultFileName,
	})
	if ack.Content != tree.DefaultFileContent {
		t.Errorf("Content = %q, want %q", ack.Content, tree.DefaultFileContent)
	}

	e.GetFileContent(alice, events.GetFileContentRequest{RoomCode: code, FileName: "ghost.js"})
	if !alice.errorContains("no such file") {
		t.Error("missing file produced no file-error")
	}
}

func TestGetWorkingDirectory(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	ack := e.GetWorkingDirectory(alice, events.GetWorkingDirectoryRequest{RoomCode: code})
	want := workspace.PathFor(e.cfg.WorkspaceRoot, code)
	if ack.WorkingDirectory != want {
		t.Errorf("WorkingDirectory = %q, want %q", ack.WorkingDirectory, want)
	}
}

// ============================================================================
// Editing
// ============================================================================

func TestSwitchFile(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.CreateFile(alice, events.CreateFileRequest{RoomCode: code, FileName: "util.js"})
	e.SwitchFile(bob, events.SwitchFileRequest{RoomCode: code, FileName: "util.js"})

	if payload, _ := bob.last(events.EventActiveFileChanged); payload.(events.ActiveFileChanged).FileName != "util.js" {
		t.Errorf("active-file-changed payload = %+v", payload)
	}
	if bob.count(events.EventFileContentUpdate) != 1 {
		t.Error("switcher did not receive the file content")
	}
	// Switching is per-user; the other member's view is untouched.
	if alice.count(events.EventActiveFileChanged) != 0 {
		t.Error("switch-file leaked to another member")
	}

	e.SwitchFile(bob, events.SwitchFileRequest{RoomCode: code, FileName: "ghost.js"})
	if !bob.errorContains("no such file") {
		t.Error("switch to missing file produced no file-error")
	}
}

func TestCodeChangeFanOut(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.CodeChange(alice, events.CodeChangeRequest{
		RoomCode: code,
		FileName: tree.DefaultFileName,
		Code:     "console.log('hi')",
	})

	if bob.count(events.EventFileSynced) != 1 {
		t.Fatal("other member missed file-synced")
	}
	payload, _ := bob.last(events.EventFileSynced)
	if fs := payload.(events.FileSynced); fs.Content != "console.log('hi')" {
		t.Errorf("file-synced payload = %+v", fs)
	}
	if alice.count(events.EventFileSynced) != 0 {
		t.Error("editor received the echo of their own change")
	}

	onDisk, err := os.ReadFile(workspace.PathFor(e.cfg.WorkspaceRoot, code) + "/" + tree.DefaultFileName)
	if err != nil || string(onDisk) != "console.log('hi')" {
		t.Errorf("disk mirror = %q, %v", onDisk, err)
	}
}

func TestCodeChangeIdenticalContentDropped(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	req := events.CodeChangeRequest{RoomCode: code, FileName: tree.DefaultFileName, Code: "same"}
	e.CodeChange(alice, req)
	e.CodeChange(alice, req)

	if got := bob.count(events.EventFileSynced); got != 1 {
		t.Errorf("file-synced count = %d, want 1", got)
	}
}

// ============================================================================
// Structure
// ============================================================================

func TestCreateFileInFolder(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.CreateFolder(alice, events.CreateFolderRequest{RoomCode: code, FolderName: "src"})
	e.CreateFile(alice, events.CreateFileRequest{RoomCode: code, FileName: "app.py", ParentFolder: "src"})

	if bob.count(events.EventFolderCreated) != 1 || bob.count(events.EventFileCreated) != 1 {
		t.Fatal("other member missed structure fan-out")
	}
	payload, _ := bob.last(events.EventFileCreated)
	if fc := payload.(events.FileCreated); fc.FileName != "src/app.py" {
		t.Errorf("file-created payload = %+v, want full path", fc)
	}

	snap := snapshotOf(t, e.GetFiles(alice, events.GetFilesRequest{RoomCode: code}).Files)
	node, ok := snap.Get("src/app.py")
	if !ok {
		t.Fatal("tree lacks src/app.py")
	}
	if node.Extension != "py" {
		t.Errorf("Extension = %q, want py", node.Extension)
	}

	if _, err := os.Stat(workspace.PathFor(e.cfg.WorkspaceRoot, code) + "/src/app.py"); err != nil {
		t.Errorf("created file missing on disk: %v", err)
	}
}

func TestCreateFileMissingParentRejected(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	e.CreateFile(alice, events.CreateFileRequest{RoomCode: code, FileName: "a.js", ParentFolder: "ghost"})
	if !alice.errorContains("no such file or folder") {
		t.Error("missing parent produced no file-error")
	}
	if alice.count(events.EventFileCreated) != 0 {
		t.Error("rejected create still fanned out")
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	e.CreateFile(alice, events.CreateFileRequest{RoomCode: code, FileName: tree.DefaultFileName})
	if !alice.errorContains("already exists") {
		t.Error("duplicate create produced no file-error")
	}
}

func TestDeleteItemFallsBackActiveFile(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.CreateFolder(alice, events.CreateFolderRequest{RoomCode: code, FolderName: "src"})
	e.CreateFile(alice, events.CreateFileRequest{RoomCode: code, FileName: "app.js", ParentFolder: "src"})
	e.SwitchFile(bob, events.SwitchFileRequest{RoomCode: code, FileName: "src/app.js"})

	e.DeleteItem(alice, events.DeleteItemRequest{RoomCode: code, ItemPath: "src"})

	payload, ok := bob.last(events.EventItemDeleted)
	if !ok {
		t.Fatal("other member missed item-deleted")
	}
	if id := payload.(events.ItemDeleted); id.ItemPath != "src" || id.Type != "folder" {
		t.Errorf("item-deleted payload = %+v", id)
	}

	// Bob's active file lived in the deleted folder: he falls back to the
	// first remaining file and gets its content.
	if payload, _ := bob.last(events.EventActiveFileChanged); payload.(events.ActiveFileChanged).FileName != tree.DefaultFileName {
		t.Errorf("fallback active-file-changed = %+v", payload)
	}
	if bob.count(events.EventFileContentUpdate) < 2 { // one from switch-file, one from fallback
		t.Error("fallback delivered no content")
	}

	if _, err := os.Stat(workspace.PathFor(e.cfg.WorkspaceRoot, code) + "/src"); !os.IsNotExist(err) {
		t.Errorf("deleted folder still on disk: %v", err)
	}
}

func TestDeleteLastFileRefused(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	e.DeleteItem(alice, events.DeleteItemRequest{RoomCode: code, ItemPath: tree.DefaultFileName})

	if !alice.errorContains("only file") {
		t.Error("deleting the only file produced no file-error")
	}
	if alice.count(events.EventItemDeleted) != 0 {
		t.Error("refused delete still fanned out")
	}
	snap := snapshotOf(t, e.GetFiles(alice, events.GetFilesRequest{RoomCode: code}).Files)
	if _, ok := snap.Get(tree.DefaultFileName); !ok {
		t.Error("the only file is gone from the tree")
	}
}

func TestRenameRetargetsActiveFile(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.RenameItem(alice, events.RenameItemRequest{
		RoomCode: code,
		OldPath:  tree.DefaultFileName,
		NewPath:  "app.js",
	})

	payload, ok := bob.last(events.EventItemRenamed)
	if !ok {
		t.Fatal("other member missed item-renamed")
	}
	if ir := payload.(events.ItemRenamed); ir.OldPath != tree.DefaultFileName || ir.NewPath != "app.js" || ir.Type != "file" {
		t.Errorf("item-renamed payload = %+v", ir)
	}

	// Both members were on the renamed file: the path moves under them
	// without a content reload.
	if payload, _ := bob.last(events.EventActiveFileChanged); payload.(events.ActiveFileChanged).FileName != "app.js" {
		t.Errorf("active-file-changed = %+v", payload)
	}
	if bob.count(events.EventFileContentUpdate) != 0 {
		t.Error("rename pushed a content update")
	}

	root := workspace.PathFor(e.cfg.WorkspaceRoot, code)
	if _, err := os.Stat(root + "/app.js"); err != nil {
		t.Errorf("renamed file missing on disk: %v", err)
	}
	if _, err := os.Stat(root + "/" + tree.DefaultFileName); !os.IsNotExist(err) {
		t.Error("old name still on disk")
	}
}

func TestMoveItemIntoFolder(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)

	e.CreateFolder(alice, events.CreateFolderRequest{RoomCode: code, FolderName: "lib"})
	e.MoveItem(alice, events.MoveItemRequest{
		RoomCode:   code,
		SourcePath: tree.DefaultFileName,
		TargetPath: "lib",
		ItemType:   "file",
	})

	payload, ok := alice.last(events.EventItemMoved)
	if !ok {
		t.Fatal("item-moved never arrived")
	}
	if im := payload.(events.ItemMoved); im.SourcePath != tree.DefaultFileName || im.TargetPath != "lib" {
		t.Errorf("item-moved payload = %+v", im)
	}

	snap := snapshotOf(t, e.GetFiles(alice, events.GetFilesRequest{RoomCode: code}).Files)
	if _, ok := snap.Get("lib/" + tree.DefaultFileName); !ok {
		t.Error("tree lacks the moved file")
	}
	if _, err := os.Stat(workspace.PathFor(e.cfg.WorkspaceRoot, code) + "/lib/" + tree.DefaultFileName); err != nil {
		t.Errorf("moved file missing on disk: %v", err)
	}

	e.MoveItem(alice, events.MoveItemRequest{RoomCode: code, SourcePath: "lib", TargetPath: "lib"})
	if !alice.errorContains("into itself") {
		t.Error("folder moved into itself without a file-error")
	}
}

func TestToggleFolderShared(t *testing.T) {
	e := newTestEngine(t)
	alice := newClient("alice")
	code := createTestRoom(t, e, alice)
	bob := newClient("bob")
	joinTestRoom(t, e, bob, code)

	e.CreateFolder(alice, events.CreateFolderRequest{RoomCode: code, FolderName: "docs"})
	e.ToggleFolder(alice, events.ToggleFolderRequest{RoomCode: code, FolderPath: "docs"})

	// Folders start expanded, so the first toggle collapses.
	payload, ok := bob.last(events.EventFolderToggled)
	if !ok {
		t.Fatal("folder-toggled is not shared state")
	}
	if ft := payload.(events.FolderToggled); ft.FolderPath != "docs" || ft.IsExpanded {
		t.Errorf("folder-toggled payload = %+v", ft)
	}

	e.ToggleFolder(alice, events.ToggleFolderRequest{RoomCode: code, FolderPath: "docs"})
	if payload, _ := bob.last(events.EventFolderToggled); !payload.(events.FolderToggled).IsExpanded {
		t.Error("second toggle did not re-expand")
	}
}
