package events

// ============================================================================
// Ack payloads
// ============================================================================

// CreateRoomAck answers create-room. RoomCode is set on success, Error on
// failure.
type CreateRoomAck struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JoinRoomAck answers join-room. On success Files holds the full file
// mapping and ActiveFile the joiner's initial active file; on failure
// Error explains (room not found, wrong password).
type JoinRoomAck struct {
	Success    bool   `json:"success"`
	Files      any    `json:"files,omitempty"`
	ActiveFile string `json:"activeFile,omitempty"`
	Error      string `json:"error,omitempty"`
}

// GetFilesAck answers get-files with the full file mapping.
type GetFilesAck struct {
	Files any `json:"files"`
}

// GetFileContentAck answers get-file-content. Content keeps its key even
// when empty.
type GetFileContentAck struct {
	Content string `json:"content"`
}

// GetWorkingDirectoryAck answers get-working-directory with the absolute
// path of the room's working directory.
type GetWorkingDirectoryAck struct {
	WorkingDirectory string `json:"workingDirectory"`
}

// ============================================================================
// Push payloads
// ============================================================================

// FileContentUpdate delivers the authoritative content of one file.
type FileContentUpdate struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// ActiveFileChanged names the recipient's new active file.
type ActiveFileChanged struct {
	FileName string `json:"fileName"`
}

// FileCreated announces a new file node.
type FileCreated struct {
	FileName string `json:"fileName"`
}

// FolderCreated announces a new folder node.
type FolderCreated struct {
	FolderPath string `json:"folderPath"`
}

// FileSynced announces that a file's content changed, with the new bytes.
type FileSynced struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// ItemDeleted announces a removed node. Type is "file" or "folder".
type ItemDeleted struct {
	ItemPath string `json:"itemPath"`
	Type     string `json:"type"`
}

// ItemRenamed announces a renamed node. Type is "file" or "folder".
type ItemRenamed struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
	Type    string `json:"type"`
}

// ItemMoved announces a node moved into a folder. TargetPath is the
// destination folder ("" for the room root).
type ItemMoved struct {
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`
	ItemType   string `json:"itemType"`
}

// FolderToggled announces a folder's new expanded state.
type FolderToggled struct {
	FolderPath string `json:"folderPath"`
	IsExpanded bool   `json:"isExpanded"`
}

// FileError reports a failed operation to the requesting user.
type FileError struct {
	Message string `json:"message"`
}

// UserJoined announces a new room member.
type UserJoined struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// UserLeft announces a departed room member.
type UserLeft struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

// RoomCreated confirms a new room to its creator.
type RoomCreated struct {
	RoomCode string `json:"roomCode"`
}
