// Package runner maps files to the shell command that runs them.
//
// Commands are relative to the room's working directory, which is the
// shell's cwd, so paths are passed through as-is. Compiled languages chain
// compile and run with && and drop the binary next to the shell's cwd.
package runner

import (
	"fmt"
	"strings"

	"github.com/codehive-dev/codehive/pkg/tree"
)

// UnsupportedError reports a file with no associated run command.
type UnsupportedError struct {
	Extension string
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	if e.Extension == "" {
		return "no run command for files without an extension"
	}
	return fmt.Sprintf("no run command for .%s files", e.Extension)
}

// IsUnsupported returns true if the error means the file type cannot be run.
func IsUnsupported(err error) bool {
	_, ok := err.(*UnsupportedError)
	return ok
}

// CommandFor returns the shell command line that runs the file at the
// given tree-relative path.
func CommandFor(path string) (string, error) {
	ext := tree.ExtensionOf(path)
	p := quote(path)
	base := quote(baseName(path))

	switch ext {
	case "js":
		return "node " + p, nil
	case "py":
		return "python " + p, nil
	case "java":
		return "javac " + p + " && java " + base, nil
	case "cpp":
		return "g++ " + p + " -o " + base + " && ./" + base, nil
	case "c":
		return "gcc " + p + " -o " + base + " && ./" + base, nil
	case "go":
		return "go run " + p, nil
	case "rs":
		return "rustc " + p + " && ./" + base, nil
	case "php":
		return "php " + p, nil
	case "rb":
		return "ruby " + p, nil
	case "sh":
		return "bash " + p, nil
	case "ps1":
		return "powershell " + p, nil
	default:
		return "", &UnsupportedError{Extension: ext}
	}
}

// baseName returns the path's leaf with its extension stripped, the name
// compiled output is given.
func baseName(path string) string {
	leaf := path
	if idx := strings.LastIndex(leaf, "/"); idx >= 0 {
		leaf = leaf[idx+1:]
	}
	if idx := strings.LastIndex(leaf, "."); idx > 0 {
		leaf = leaf[:idx]
	}
	return leaf
}

// quote wraps arguments containing whitespace in double quotes so the
// shell treats them as one token.
func quote(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
