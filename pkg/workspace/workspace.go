// Package workspace manages a room's on-disk working directory.
//
// Every room owns one directory under the OS temp dir, named after its
// code. The directory mirrors the in-memory file tree so shell commands
// operate on real files. Writes are content-diffed: a write whose bytes
// match what is already on disk is skipped entirely, which keeps no-op
// mirror writes from triggering filesystem watcher events that would echo
// back as changes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/pkg/tree"
)

// dirPrefix is prepended to the room code to form the directory name.
const dirPrefix = "compiler_"

// PathFor returns the working directory location for a room code.
// An empty baseDir means the OS temp directory.
func PathFor(baseDir, code string) string {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return filepath.Join(baseDir, dirPrefix+code)
}

// Clean removes a room's working directory if it exists. Used before
// materializing a room so leftovers from an earlier process never leak
// into the fresh mirror.
func Clean(baseDir, code string) error {
	root := PathFor(baseDir, code)
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to remove working directory %q: %w", root, err)
	}
	return nil
}

// Dir is one room's working directory.
type Dir struct {
	mu   sync.Mutex
	root string
}

// New creates the working directory for a room, including parents.
func New(baseDir, code string) (*Dir, error) {
	root := PathFor(baseDir, code)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory %q: %w", root, err)
	}

	logger.Debug("Created working directory", logger.KeyRoom, code, logger.KeyPath, root)

	return &Dir{root: root}, nil
}

// Root returns the absolute path of the working directory.
func (d *Dir) Root() string {
	return d.root
}

// Path resolves a tree-relative path to an absolute one, rejecting any
// path that would escape the working directory.
func (d *Dir) Path(rel string) (string, error) {
	full := filepath.Join(d.root, filepath.FromSlash(rel))
	if full != d.root && !strings.HasPrefix(full, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", rel)
	}
	return full, nil
}

// Rel converts an absolute path inside the working directory back to the
// slash-separated tree form.
func (d *Dir) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q is outside the working directory", abs)
	}
	return rel, nil
}

// WriteFile mirrors file content to disk, creating parent directories.
// Returns false without touching the file when the on-disk bytes already
// match.
func (d *Dir) WriteFile(rel, content string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.Path(rel)
	if err != nil {
		return false, err
	}

	if current, readErr := os.ReadFile(path); readErr == nil && string(current) == content {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create parent directories for %q: %w", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write %q: %w", rel, err)
	}

	return true, nil
}

// ReadFile returns the raw bytes of a file as a string.
func (d *Dir) ReadFile(rel string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.Path(rel)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateDir makes a directory, including parents. Idempotent.
func (d *Dir) CreateDir(rel string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.Path(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", rel, err)
	}
	return nil
}

// Remove deletes a file or directory tree. Missing paths are not an error.
func (d *Dir) Remove(rel string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.Path(rel)
	if err != nil {
		return err
	}
	if path == d.root {
		return fmt.Errorf("refusing to remove the working directory root")
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %q: %w", rel, err)
	}
	return nil
}

// Rename moves a file or directory, creating the target's parent first.
func (d *Dir) Rename(oldRel, newRel string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	oldPath, err := d.Path(oldRel)
	if err != nil {
		return err
	}
	newPath, err := d.Path(newRel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directories for %q: %w", newRel, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename %q to %q: %w", oldRel, newRel, err)
	}
	return nil
}

// Exists reports whether a path is present on disk.
func (d *Dir) Exists(rel string) bool {
	path, err := d.Path(rel)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// Apply executes one tree side-effect descriptor against the directory.
// The wrote result is true when bytes actually changed on disk (always
// true for non-write effects that succeed).
func (d *Dir) Apply(effect tree.Effect) (bool, error) {
	switch effect.Op {
	case tree.EffectWriteFile:
		return d.WriteFile(effect.Path, effect.Content)
	case tree.EffectMakeDir:
		return true, d.CreateDir(effect.Path)
	case tree.EffectRemove:
		return true, d.Remove(effect.Path)
	case tree.EffectRename:
		return true, d.Rename(effect.Path, effect.NewPath)
	default:
		return false, fmt.Errorf("unknown effect operation %d", int(effect.Op))
	}
}

// Cleanup removes the entire working directory.
func (d *Dir) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("failed to remove working directory %q: %w", d.root, err)
	}

	logger.Debug("Removed working directory", logger.KeyPath, d.root)
	return nil
}
