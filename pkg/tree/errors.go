package tree

import (
	"fmt"
)

// ErrorCode classifies a failed tree operation.
type ErrorCode int

const (
	// CodeNotFound indicates the path does not exist in the tree.
	CodeNotFound ErrorCode = iota + 1

	// CodeAlreadyExists indicates the target path is already taken.
	CodeAlreadyExists

	// CodeCannotDeleteLastFile indicates the operation would remove the
	// room's only file.
	CodeCannotDeleteLastFile

	// CodeIntoSelf indicates a folder move whose destination lies inside
	// the folder being moved.
	CodeIntoSelf

	// CodeNotAFile indicates the operation requires a file node but the
	// path names a folder.
	CodeNotAFile

	// CodeInvalidPath indicates a malformed path (absolute, empty,
	// dot components, backslashes).
	CodeInvalidPath
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeCannotDeleteLastFile:
		return "CannotDeleteLastFile"
	case CodeIntoSelf:
		return "IntoSelf"
	case CodeNotAFile:
		return "NotAFile"
	case CodeInvalidPath:
		return "InvalidPath"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// Error is a failed tree operation with a code and the offending path.
// The message is safe to forward to the requesting client.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(path string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "no such file or folder",
		Path:    path,
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path string) *Error {
	return &Error{
		Code:    CodeAlreadyExists,
		Message: "already exists",
		Path:    path,
	}
}

// NewCannotDeleteLastFileError creates a CannotDeleteLastFile error.
func NewCannotDeleteLastFileError(path string) *Error {
	return &Error{
		Code:    CodeCannotDeleteLastFile,
		Message: "cannot delete the only file in the room",
		Path:    path,
	}
}

// NewIntoSelfError creates an IntoSelf error.
func NewIntoSelfError(path string) *Error {
	return &Error{
		Code:    CodeIntoSelf,
		Message: "cannot move a folder into itself",
		Path:    path,
	}
}

// NewNotAFileError creates a NotAFile error.
func NewNotAFileError(path string) *Error {
	return &Error{
		Code:    CodeNotAFile,
		Message: "not a file",
		Path:    path,
	}
}

// NewInvalidPathError creates an InvalidPath error.
func NewInvalidPathError(path, reason string) *Error {
	return &Error{
		Code:    CodeInvalidPath,
		Message: reason,
		Path:    path,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf extracts the error code, or zero for non-tree errors.
func CodeOf(err error) ErrorCode {
	if treeErr, ok := err.(*Error); ok {
		return treeErr.Code
	}
	return 0
}

// IsNotFound returns true if the error is a NotFound error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsAlreadyExists returns true if the error is an AlreadyExists error.
func IsAlreadyExists(err error) bool {
	return CodeOf(err) == CodeAlreadyExists
}

// IsCannotDeleteLastFile returns true if the error is a CannotDeleteLastFile error.
func IsCannotDeleteLastFile(err error) bool {
	return CodeOf(err) == CodeCannotDeleteLastFile
}
