// Package events defines the websocket wire protocol of the room engine.
//
// Every frame on the event channel is a JSON envelope carrying a named
// event and an event-specific payload. Clients send requests; the server
// answers some of them with an ack frame (correlated by the optional id)
// and pushes state changes as named outbound events.
//
// Frame shapes:
//   - inbound:  {"event": "join-room", "id": 3, "data": {...}}
//   - outbound: {"event": "files-update", "data": {...}}
//   - ack:      {"event": "ack", "id": 3, "data": {...}}
//
// The id is chosen by the client and echoed verbatim; frames sent without
// an id receive no ack. Payload field names follow the client convention
// (camelCase).
package events

import "encoding/json"

// ============================================================================
// Frames
// ============================================================================

// Envelope is an inbound frame. Data stays raw until the event name has
// been dispatched to its payload type.
type Envelope struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame is an outbound frame. ID is set only on ack frames.
type Frame struct {
	Event string `json:"event"`
	ID    uint64 `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// EventAck is the reply frame answering an inbound frame that carried an id.
const EventAck = "ack"

// ============================================================================
// Inbound events (client → server)
// ============================================================================

const (
	// EventCreateRoom allocates a room, joins the creator, and acks the code.
	EventCreateRoom = "create-room"

	// EventJoinRoom verifies the room password and joins the user.
	EventJoinRoom = "join-room"

	// EventGetFiles acks the current file mapping of the room.
	EventGetFiles = "get-files"

	// EventGetFileContent acks the content of one file.
	EventGetFileContent = "get-file-content"

	// EventSwitchFile changes the sender's active file.
	EventSwitchFile = "switch-file"

	// EventCodeChange replaces the content of a file.
	EventCodeChange = "code-change"

	// EventCreateFile adds a file node (optionally inside a folder).
	EventCreateFile = "create-file"

	// EventCreateFolder adds a folder node (optionally inside a folder).
	EventCreateFolder = "create-folder"

	// EventDeleteItem removes a file or a folder subtree.
	EventDeleteItem = "delete-item"

	// EventRenameItem renames a file or folder in place.
	EventRenameItem = "rename-item"

	// EventMoveItem moves a file or folder into a target folder.
	EventMoveItem = "move-item"

	// EventToggleFolder flips a folder's expanded flag.
	EventToggleFolder = "toggle-folder"

	// EventTerminalInit ensures the sender has a shell session.
	EventTerminalInit = "terminal-init"

	// EventTerminalInput writes raw bytes to the sender's shell.
	EventTerminalInput = "terminal-input"

	// EventTerminalResize changes the sender's shell geometry.
	EventTerminalResize = "terminal-resize"

	// EventExecuteCommand runs one command line in the sender's shell.
	EventExecuteCommand = "execute-command"

	// EventClearTerminal clears the sender's terminal screen.
	EventClearTerminal = "clear-terminal"

	// EventKillProcess interrupts the sender's foreground process (SIGINT).
	EventKillProcess = "kill-process"

	// EventRunFile executes a named file via its extension's run command.
	EventRunFile = "run-file"

	// EventSaveAndRun flushes and runs a file (default: sender's active file).
	EventSaveAndRun = "save-and-run"

	// EventGetWorkingDirectory acks the room's on-disk working directory.
	EventGetWorkingDirectory = "get-working-directory"
)

// ============================================================================
// Outbound events (server → client)
// ============================================================================

const (
	// EventFilesUpdate carries the full file mapping as its data (room-wide).
	EventFilesUpdate = "files-update"

	// EventFileContentUpdate delivers one file's content to one user.
	EventFileContentUpdate = "file-content-update"

	// EventActiveFileChanged tells one user their active file moved.
	EventActiveFileChanged = "active-file-changed"

	// EventFileCreated announces a new file (room-wide).
	EventFileCreated = "file-created"

	// EventFolderCreated announces a new folder (room-wide).
	EventFolderCreated = "folder-created"

	// EventFileSynced announces changed file content (room minus originator).
	EventFileSynced = "file-synced"

	// EventItemDeleted announces a removed file or folder (room-wide).
	EventItemDeleted = "item-deleted"

	// EventItemRenamed announces a rename (room-wide).
	EventItemRenamed = "item-renamed"

	// EventItemMoved announces a move (room-wide).
	EventItemMoved = "item-moved"

	// EventFolderToggled announces a folder expand/collapse (room-wide).
	EventFolderToggled = "folder-toggled"

	// EventFileError reports a failed operation to the requesting user only.
	EventFileError = "file-error"

	// EventTerminalOutput carries raw shell output as a bare string,
	// delivered only to the owning user.
	EventTerminalOutput = "terminal-output"

	// EventUserJoined announces a new member (room minus the joiner).
	EventUserJoined = "user-joined"

	// EventUserLeft announces a departed member (room minus the leaver).
	EventUserLeft = "user-left"

	// EventRoomCreated confirms room creation to the creator.
	EventRoomCreated = "room-created"
)
