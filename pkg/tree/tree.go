// Package tree implements the shared in-memory file tree of a room.
//
// The tree is a flat ordered mapping from slash-separated relative paths to
// nodes. Folder membership is encoded in the path keys ("src/main.js" lives
// inside "src"), which keeps every operation a plain map rewrite. Insertion
// order is preserved and is the rule for the active-file fallback: the first
// file in insertion order.
//
// A Tree is not safe for concurrent use. Callers serialize access through
// the owning room's mutex, mutate under it, and apply the returned Effect
// descriptors to the working directory after release.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================================
// Side-Effect Descriptors
// ============================================================================

// EffectOp is the kind of working-directory side effect an operation produced.
type EffectOp int

const (
	// EffectWriteFile writes Content to Path, creating parents.
	EffectWriteFile EffectOp = iota + 1

	// EffectMakeDir creates the directory at Path.
	EffectMakeDir

	// EffectRemove deletes Path (recursively when Dir is set).
	EffectRemove

	// EffectRename moves Path to NewPath.
	EffectRename
)

// String returns a human-readable name for the effect operation.
func (op EffectOp) String() string {
	switch op {
	case EffectWriteFile:
		return "WriteFile"
	case EffectMakeDir:
		return "MakeDir"
	case EffectRemove:
		return "Remove"
	case EffectRename:
		return "Rename"
	default:
		return fmt.Sprintf("Unknown(%d)", int(op))
	}
}

// Effect describes one working-directory side effect of a tree mutation.
// Folder-level removes and renames are recursive: a single descriptor with
// Dir set covers the whole subtree, and consumers tracking per-file state
// (the active-file tracker) apply it by path-prefix rewriting.
type Effect struct {
	Op      EffectOp
	Path    string
	NewPath string
	Content string
	Dir     bool
}

// ============================================================================
// Tree
// ============================================================================

// Tree is a room's file tree: an insertion-ordered flat map of paths to nodes.
type Tree struct {
	order []string
	nodes map[string]*Node
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

// NewWithDefaultFile returns a tree seeded with the starter file every
// fresh room begins with.
func NewWithDefaultFile() *Tree {
	t := New()
	t.insert(DefaultFileName, newFileNode(DefaultFileName, DefaultFileContent))
	return t
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.order)
}

// Has reports whether a node exists at the given path.
func (t *Tree) Has(path string) bool {
	_, ok := t.nodes[path]
	return ok
}

// Get returns a copy of the node at the given path.
func (t *Tree) Get(path string) (Node, bool) {
	node, ok := t.nodes[path]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// Paths returns every path in insertion order.
func (t *Tree) Paths() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Files returns the paths of all file nodes in insertion order.
func (t *Tree) Files() []string {
	var out []string
	for _, path := range t.order {
		if t.nodes[path].Type == NodeFile {
			out = append(out, path)
		}
	}
	return out
}

// FirstFile returns the first file in insertion order, the path every user
// falls back to when their active file disappears.
func (t *Tree) FirstFile() (string, bool) {
	for _, path := range t.order {
		if t.nodes[path].Type == NodeFile {
			return path, true
		}
	}
	return "", false
}

// FileContent returns the content of the file at the given path.
func (t *Tree) FileContent(path string) (string, error) {
	node, ok := t.nodes[path]
	if !ok {
		return "", NewNotFoundError(path)
	}
	if node.Type != NodeFile {
		return "", NewNotAFileError(path)
	}
	return node.Content, nil
}

// ============================================================================
// Mutations
// ============================================================================

// CreateFile inserts a file node with starter content derived from the
// path's extension.
func (t *Tree) CreateFile(path string) ([]Effect, error) {
	return t.CreateFileWithContent(path, TemplateFor(path))
}

// CreateFileWithContent inserts a file node with the exact given content.
// Used when seeding rooms and when adopting files that appeared on disk.
func (t *Tree) CreateFileWithContent(path, content string) ([]Effect, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if t.Has(path) {
		return nil, NewAlreadyExistsError(path)
	}

	t.insert(path, newFileNode(path, content))

	return []Effect{{Op: EffectWriteFile, Path: path, Content: content}}, nil
}

// CreateFolder inserts a folder node.
func (t *Tree) CreateFolder(path string) ([]Effect, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if t.Has(path) {
		return nil, NewAlreadyExistsError(path)
	}

	t.insert(path, newFolderNode())

	return []Effect{{Op: EffectMakeDir, Path: path}}, nil
}

// DeleteItem removes a node. Deleting a folder removes every descendant.
// A delete that would leave the tree without any file node fails with
// CannotDeleteLastFile, whether it targets the file itself or a folder
// holding all remaining files.
func (t *Tree) DeleteItem(path string) ([]Effect, error) {
	node, ok := t.nodes[path]
	if !ok {
		return nil, NewNotFoundError(path)
	}

	if node.Type == NodeFile {
		if t.fileCount() == 1 {
			return nil, NewCannotDeleteLastFileError(path)
		}
		t.remove(path)
		return []Effect{{Op: EffectRemove, Path: path}}, nil
	}

	prefix := path + "/"
	if t.fileCount() > 0 && t.fileCount() == t.fileCountUnder(prefix) {
		return nil, NewCannotDeleteLastFileError(path)
	}

	t.remove(path)
	for _, key := range t.Paths() {
		if strings.HasPrefix(key, prefix) {
			t.remove(key)
		}
	}

	return []Effect{{Op: EffectRemove, Path: path, Dir: true}}, nil
}

// RenameItem re-keys a node. Renaming a folder re-keys every descendant in
// place, preserving order slots. Renaming a file re-derives its extension
// from the new leaf name.
func (t *Tree) RenameItem(oldPath, newPath string) ([]Effect, error) {
	if err := validatePath(oldPath); err != nil {
		return nil, err
	}
	if err := validatePath(newPath); err != nil {
		return nil, err
	}

	node, ok := t.nodes[oldPath]
	if !ok {
		return nil, NewNotFoundError(oldPath)
	}
	if t.Has(newPath) {
		return nil, NewAlreadyExistsError(newPath)
	}

	if node.Type == NodeFile {
		t.rekey(oldPath, newPath)
		node.Extension = ExtensionOf(newPath)
		return []Effect{{Op: EffectRename, Path: oldPath, NewPath: newPath}}, nil
	}

	if strings.HasPrefix(newPath, oldPath+"/") {
		return nil, NewIntoSelfError(oldPath)
	}
	if err := t.rekeySubtree(oldPath, newPath); err != nil {
		return nil, err
	}
	return []Effect{{Op: EffectRename, Path: oldPath, NewPath: newPath, Dir: true}}, nil
}

// MoveItem relocates a node under the target folder, keeping its leaf name.
// An empty target folder means the tree root. The node's recorded type is
// authoritative; the declared kind from the client is only echoed in events.
func (t *Tree) MoveItem(sourcePath, targetFolder string) ([]Effect, error) {
	if err := validatePath(sourcePath); err != nil {
		return nil, err
	}
	if targetFolder != "" {
		if err := validatePath(targetFolder); err != nil {
			return nil, err
		}
	}

	node, ok := t.nodes[sourcePath]
	if !ok {
		return nil, NewNotFoundError(sourcePath)
	}

	if targetFolder != "" {
		target, ok := t.nodes[targetFolder]
		if !ok || target.Type != NodeFolder {
			return nil, NewNotFoundError(targetFolder)
		}
	}

	if node.Type == NodeFolder {
		if targetFolder == sourcePath || strings.HasPrefix(targetFolder, sourcePath+"/") {
			return nil, NewIntoSelfError(sourcePath)
		}
	}

	newPath := Join(targetFolder, leafOf(sourcePath))
	if t.Has(newPath) {
		return nil, NewAlreadyExistsError(newPath)
	}

	if node.Type == NodeFile {
		t.rekey(sourcePath, newPath)
		return []Effect{{Op: EffectRename, Path: sourcePath, NewPath: newPath}}, nil
	}

	if err := t.rekeySubtree(sourcePath, newPath); err != nil {
		return nil, err
	}
	return []Effect{{Op: EffectRename, Path: sourcePath, NewPath: newPath, Dir: true}}, nil
}

// ToggleFolder flips a folder's expanded view hint and returns the new state.
func (t *Tree) ToggleFolder(path string) (bool, error) {
	node, ok := t.nodes[path]
	if !ok || node.Type != NodeFolder {
		return false, NewNotFoundError(path)
	}
	node.Expanded = !node.Expanded
	return node.Expanded, nil
}

// SetFileContent replaces a file's content. Returns false when the new
// content is byte-identical, in which case callers skip the disk write and
// the fan-out entirely.
func (t *Tree) SetFileContent(path, content string) (bool, error) {
	node, ok := t.nodes[path]
	if !ok {
		return false, NewNotFoundError(path)
	}
	if node.Type != NodeFile {
		return false, NewNotAFileError(path)
	}
	if node.Content == content {
		return false, nil
	}
	node.Content = content
	return true, nil
}

// ============================================================================
// Snapshot
// ============================================================================

// Snapshot is an immutable, insertion-ordered copy of the tree used for
// fan-out. It marshals to a JSON object whose keys appear in tree order.
type Snapshot struct {
	order []string
	nodes map[string]Node
}

// Snapshot returns a deep copy of the tree's current state.
func (t *Tree) Snapshot() Snapshot {
	s := Snapshot{
		order: make([]string, len(t.order)),
		nodes: make(map[string]Node, len(t.nodes)),
	}
	copy(s.order, t.order)
	for path, node := range t.nodes {
		s.nodes[path] = *node
	}
	return s
}

// Len returns the number of nodes in the snapshot.
func (s Snapshot) Len() int {
	return len(s.order)
}

// Get returns the node at the given path.
func (s Snapshot) Get(path string) (Node, bool) {
	node, ok := s.nodes[path]
	return node, ok
}

// Paths returns every path in insertion order.
func (s Snapshot) Paths() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MarshalJSON emits the snapshot as a JSON object in insertion order.
// Clients render the tree in key order, so a sorted map would reshuffle
// their view on every update.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, path := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(path)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		node := s.nodes[path]
		value, err := json.Marshal(&node)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ============================================================================
// Internals
// ============================================================================

func (t *Tree) insert(path string, node *Node) {
	t.order = append(t.order, path)
	t.nodes[path] = node
}

func (t *Tree) remove(path string) {
	delete(t.nodes, path)
	for i, key := range t.order {
		if key == path {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// rekey renames a single map key in place, preserving its order slot.
func (t *Tree) rekey(oldPath, newPath string) {
	node := t.nodes[oldPath]
	delete(t.nodes, oldPath)
	t.nodes[newPath] = node
	for i, key := range t.order {
		if key == oldPath {
			t.order[i] = newPath
			return
		}
	}
}

// rekeySubtree renames a folder and every descendant, preserving order
// slots. It verifies no destination key collides with a node outside the
// moved subtree before touching anything.
func (t *Tree) rekeySubtree(oldPath, newPath string) error {
	prefix := oldPath + "/"

	moved := make(map[string]string)
	for _, key := range t.order {
		switch {
		case key == oldPath:
			moved[key] = newPath
		case strings.HasPrefix(key, prefix):
			moved[key] = newPath + "/" + key[len(prefix):]
		}
	}

	for _, dest := range moved {
		if _, exists := t.nodes[dest]; exists {
			if _, isMoved := moved[dest]; !isMoved {
				return NewAlreadyExistsError(dest)
			}
		}
	}

	rekeyed := make(map[string]*Node, len(t.nodes))
	for i, key := range t.order {
		dest, ok := moved[key]
		if !ok {
			dest = key
		}
		t.order[i] = dest
		rekeyed[dest] = t.nodes[key]
	}
	t.nodes = rekeyed

	return nil
}

func (t *Tree) fileCount() int {
	count := 0
	for _, node := range t.nodes {
		if node.Type == NodeFile {
			count++
		}
	}
	return count
}

// fileCountUnder counts file nodes whose path starts with prefix, which
// must end in "/".
func (t *Tree) fileCountUnder(prefix string) int {
	count := 0
	for path, node := range t.nodes {
		if node.Type == NodeFile && strings.HasPrefix(path, prefix) {
			count++
		}
	}
	return count
}

// ============================================================================
// Paths
// ============================================================================

// Join concatenates a parent folder path and a leaf name. An empty parent
// means the tree root.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// validatePath rejects paths the tree cannot key: empty, absolute, with
// backslashes, trailing slashes, or dot segments.
func validatePath(path string) error {
	if path == "" {
		return NewInvalidPathError(path, "empty path")
	}
	if strings.Contains(path, "\\") {
		return NewInvalidPathError(path, "backslashes are not allowed")
	}
	if strings.HasPrefix(path, "/") {
		return NewInvalidPathError(path, "absolute paths are not allowed")
	}
	if strings.HasSuffix(path, "/") {
		return NewInvalidPathError(path, "trailing slash")
	}
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "":
			return NewInvalidPathError(path, "empty path segment")
		case ".", "..":
			return NewInvalidPathError(path, "dot segments are not allowed")
		}
	}
	return nil
}
