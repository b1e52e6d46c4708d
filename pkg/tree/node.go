package tree

import (
	"encoding/json"
	"strings"
)

// NodeType distinguishes files from folders.
type NodeType string

const (
	// NodeFile is a leaf node carrying text content.
	NodeFile NodeType = "file"

	// NodeFolder is a container node. Its children are the tree entries
	// whose paths have this node's path as a prefix.
	NodeFolder NodeType = "folder"
)

// Node is a single entry in a room's file tree.
//
// The tree is a flat mapping, so a Node does not hold children; folder
// membership is encoded in the path keys. Expanded is a pure view hint
// shared across the room.
type Node struct {
	Type      NodeType
	Content   string
	Extension string
	Expanded  bool
}

// fileNodeJSON is the wire shape of a file node.
type fileNodeJSON struct {
	Type      NodeType `json:"type"`
	Content   string   `json:"content"`
	Extension string   `json:"extension"`
	Expanded  bool     `json:"isExpanded"`
}

// folderNodeJSON is the wire shape of a folder node. Folders carry no
// content or extension fields.
type folderNodeJSON struct {
	Type     NodeType `json:"type"`
	Expanded bool     `json:"isExpanded"`
}

// MarshalJSON emits the client-facing node shape.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.Type == NodeFolder {
		return json.Marshal(folderNodeJSON{Type: n.Type, Expanded: n.Expanded})
	}
	return json.Marshal(fileNodeJSON{
		Type:      n.Type,
		Content:   n.Content,
		Extension: n.Extension,
		Expanded:  n.Expanded,
	})
}

// UnmarshalJSON accepts either node shape.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw fileNodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Type = raw.Type
	n.Content = raw.Content
	n.Extension = raw.Extension
	n.Expanded = raw.Expanded
	return nil
}

// newFileNode builds a file node, deriving the extension from the path.
func newFileNode(path, content string) *Node {
	return &Node{
		Type:      NodeFile,
		Content:   content,
		Extension: ExtensionOf(path),
	}
}

// newFolderNode builds a folder node, expanded so freshly created folders
// open in the client tree view.
func newFolderNode() *Node {
	return &Node{Type: NodeFolder, Expanded: true}
}

// ExtensionOf returns the lower-cased extension of the path's leaf name,
// without the dot. A leaf with no dot has an empty extension.
func ExtensionOf(path string) string {
	leaf := leafOf(path)
	idx := strings.LastIndex(leaf, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(leaf[idx+1:])
}

// leafOf returns the last segment of a slash-separated path.
func leafOf(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
