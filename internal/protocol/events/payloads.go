package events

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate checks the struct tags of decoded payloads. A single instance
// caches the parsed tags across all payload types.
var validate = validator.New()

// Decode unmarshals an envelope's raw data into dst and validates its
// required fields. An absent data field decodes as an empty object so
// that validation reports the missing fields rather than a JSON error.
func Decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// ============================================================================
// Inbound payloads
// ============================================================================

// CreateRoomRequest asks for a new room. The password becomes the room
// credential; the username identifies the creator in the member list.
type CreateRoomRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// JoinRoomRequest authenticates against an existing room. The code is
// matched case-insensitively (stored upper-case).
type JoinRoomRequest struct {
	Username string `json:"username" validate:"required"`
	RoomCode string `json:"roomCode" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type GetFilesRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type GetFileContentRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	FileName string `json:"fileName" validate:"required"`
}

type SwitchFileRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	FileName string `json:"fileName" validate:"required"`
}

// CodeChangeRequest replaces a file's content. Code carries no required
// tag: an emptied editor buffer is a legal value.
type CodeChangeRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	FileName string `json:"fileName" validate:"required"`
	Code     string `json:"code"`
}

// CreateFileRequest creates a file. ParentFolder is optional; empty means
// the room root. FileName is the leaf name, not a path.
type CreateFileRequest struct {
	RoomCode     string `json:"roomCode" validate:"required"`
	FileName     string `json:"fileName" validate:"required"`
	ParentFolder string `json:"parentFolder,omitempty"`
}

// CreateFolderRequest creates a folder, optionally nested.
type CreateFolderRequest struct {
	RoomCode     string `json:"roomCode" validate:"required"`
	FolderName   string `json:"folderName" validate:"required"`
	ParentFolder string `json:"parentFolder,omitempty"`
}

type DeleteItemRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	ItemPath string `json:"itemPath" validate:"required"`
}

type RenameItemRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	OldPath  string `json:"oldPath" validate:"required"`
	NewPath  string `json:"newPath" validate:"required"`
}

// MoveItemRequest moves a node into a target folder. An empty TargetPath
// means the room root. ItemType is advisory; the stored node type decides.
type MoveItemRequest struct {
	RoomCode   string `json:"roomCode" validate:"required"`
	SourcePath string `json:"sourcePath" validate:"required"`
	TargetPath string `json:"targetPath,omitempty"`
	ItemType   string `json:"itemType,omitempty"`
}

type ToggleFolderRequest struct {
	RoomCode   string `json:"roomCode" validate:"required"`
	FolderPath string `json:"folderPath" validate:"required"`
}

type TerminalInitRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

// TerminalInputRequest carries raw keystrokes. Input may legitimately be
// a bare control byte or empty.
type TerminalInputRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Input    string `json:"input"`
}

type TerminalResizeRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Cols     uint16 `json:"cols" validate:"required"`
	Rows     uint16 `json:"rows" validate:"required"`
}

type ExecuteCommandRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Command  string `json:"command"`
}

type ClearTerminalRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type KillProcessRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type RunFileRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	FileName string `json:"fileName" validate:"required"`
}

// SaveAndRunRequest flushes and runs FileName, or the sender's active
// file when FileName is empty.
type SaveAndRunRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	FileName string `json:"fileName,omitempty"`
}

type GetWorkingDirectoryRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
}
