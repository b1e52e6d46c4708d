package engine

import (
	"fmt"
	"strings"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/pkg/arbiter"
	"github.com/codehive-dev/codehive/pkg/hub"
	"github.com/codehive-dev/codehive/pkg/tree"
)

// claim is one sync token a disk mutation needs before it runs.
type claim struct {
	path   string
	folder bool
}

// subtreeClaims lists the sync tokens a recursive disk operation rooted at
// path needs. The watcher reports subtree changes entry by entry, so every
// descendant gets its own claim. Callers hold the room mutex and call this
// before mutating the tree.
func subtreeClaims(t *tree.Tree, path string) []claim {
	node, ok := t.Get(path)
	if !ok {
		return nil
	}
	claims := []claim{{path: path, folder: node.Type == tree.NodeFolder}}
	if node.Type != tree.NodeFolder {
		return claims
	}
	prefix := path + "/"
	for _, p := range t.Paths() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		child, _ := t.Get(p)
		claims = append(claims, claim{path: p, folder: child.Type == tree.NodeFolder})
	}
	return claims
}

// rewriteClaims maps a claim set rooted at oldPath to the same set rooted
// at newPath. A rename produces disk events on both sides.
func rewriteClaims(claims []claim, oldPath, newPath string) []claim {
	out := make([]claim, 0, len(claims))
	for _, cl := range claims {
		p := cl.path
		switch {
		case p == oldPath:
			p = newPath
		case strings.HasPrefix(p, oldPath+"/"):
			p = newPath + strings.TrimPrefix(p, oldPath)
		}
		out = append(out, claim{path: p, folder: cl.folder})
	}
	return out
}

// claimAll takes every editor token or none. A veto from an active
// terminal token means the disk already carries the change whose echo the
// tree just absorbed, so the caller must skip the disk mutation.
func (e *Engine) claimAll(code string, claims []claim) bool {
	for i, cl := range claims {
		if e.arb.Claim(arbiter.OriginEditor, code, cl.path, cl.folder) {
			continue
		}
		for _, taken := range claims[:i] {
			e.arb.Release(arbiter.OriginEditor, code, taken.path, taken.folder)
		}
		e.metrics.SyncSuppressed(string(arbiter.OriginEditor))
		return false
	}
	return true
}

// releaseAll drops tokens whose disk operation never happened.
func (e *Engine) releaseAll(code string, claims []claim) {
	for _, cl := range claims {
		e.arb.Release(arbiter.OriginEditor, code, cl.path, cl.folder)
	}
}

// mirror applies tree side effects to the working directory. Disk failures
// are logged and swallowed: the tree stays authoritative and the fan-out
// proceeds.
func (e *Engine) mirror(lr *liveRoom, effects []tree.Effect) {
	for _, eff := range effects {
		if _, err := lr.dir.Apply(eff); err != nil {
			logger.Warn("Failed to mirror change to working directory",
				logger.Room(lr.code),
				logger.Op(eff.Op.String()),
				logger.Path(eff.Path),
				logger.Err(err))
		}
	}
}

// mirrorStrict is mirror for operations that roll back on disk failure.
func (e *Engine) mirrorStrict(lr *liveRoom, effects []tree.Effect) error {
	for _, eff := range effects {
		if _, err := lr.dir.Apply(eff); err != nil {
			return err
		}
	}
	return nil
}

// treeFail reports a rejected tree operation to the requester only.
func (e *Engine) treeFail(c hub.Client, err error) {
	e.metrics.TreeError(tree.CodeOf(err).String())
	c.Send(events.EventFileError, events.FileError{Message: err.Error()})
}

// fanOutTree broadcasts the new tree shape plus the operation's own event
// to the whole room, sender included.
func (e *Engine) fanOutTree(code string, snap tree.Snapshot, event string, payload any) {
	e.hub.Broadcast(code, events.EventFilesUpdate, snap)
	e.hub.Broadcast(code, event, payload)
}

// retargetDeletedLocked points users whose active file vanished at the
// first remaining file, returning the reassignments. Callers hold the
// room mutex; the tree has already been mutated.
func retargetDeletedLocked(lr *liveRoom, path string, dir bool) map[string]string {
	fallback, ok := lr.tree.FirstFile()
	if !ok {
		return nil
	}
	prefix := path + "/"
	var moved map[string]string
	for user, p := range lr.active {
		if p != path && !(dir && strings.HasPrefix(p, prefix)) {
			continue
		}
		lr.active[user] = fallback
		if moved == nil {
			moved = make(map[string]string)
		}
		moved[user] = fallback
	}
	return moved
}

// retargetRenamedLocked rewrites active paths touched by a rename or
// move, returning the reassignments. Callers hold the room mutex.
func retargetRenamedLocked(lr *liveRoom, oldPath, newPath string) map[string]string {
	prefix := oldPath + "/"
	var renamed map[string]string
	for user, p := range lr.active {
		var np string
		switch {
		case p == oldPath:
			np = newPath
		case strings.HasPrefix(p, prefix):
			np = newPath + strings.TrimPrefix(p, oldPath)
		default:
			continue
		}
		lr.active[user] = np
		if renamed == nil {
			renamed = make(map[string]string)
		}
		renamed[user] = np
	}
	return renamed
}

// notifyFallback tells each reassigned user their new active file and
// hands them its content, since the file they were editing is gone.
func (e *Engine) notifyFallback(code string, snap tree.Snapshot, moved map[string]string) {
	for user, p := range moved {
		e.hub.SendToUser(code, user, events.EventActiveFileChanged, events.ActiveFileChanged{FileName: p})
		if node, ok := snap.Get(p); ok {
			e.hub.SendToUser(code, user, events.EventFileContentUpdate, events.FileContentUpdate{
				FileName: p,
				Content:  node.Content,
			})
		}
	}
}

// notifyRenamed tells each affected user their active file's new path.
// The content did not change, so no content update accompanies it.
func (e *Engine) notifyRenamed(code string, renamed map[string]string) {
	for user, p := range renamed {
		e.hub.SendToUser(code, user, events.EventActiveFileChanged, events.ActiveFileChanged{FileName: p})
	}
}

// ============================================================================
// Read Operations
// ============================================================================

// GetFiles returns the room's current tree.
func (e *Engine) GetFiles(c hub.Client, req events.GetFilesRequest) events.GetFilesAck {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return events.GetFilesAck{}
	}

	lr.mu.Lock()
	snap := lr.tree.Snapshot()
	lr.mu.Unlock()

	return events.GetFilesAck{Files: snap}
}

// GetFileContent returns one file's content.
func (e *Engine) GetFileContent(c hub.Client, req events.GetFileContentRequest) events.GetFileContentAck {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return events.GetFileContentAck{}
	}

	lr.mu.Lock()
	content, err := lr.tree.FileContent(req.FileName)
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return events.GetFileContentAck{}
	}
	return events.GetFileContentAck{Content: content}
}

// ============================================================================
// Editing
// ============================================================================

// SwitchFile changes the sender's active file. Only the sender hears about
// it: every member has their own cursor into the tree.
func (e *Engine) SwitchFile(c hub.Client, req events.SwitchFileRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}

	lr.mu.Lock()
	content, err := lr.tree.FileContent(req.FileName)
	if err == nil {
		lr.active[c.UserID()] = req.FileName
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	c.Send(events.EventActiveFileChanged, events.ActiveFileChanged{FileName: req.FileName})
	c.Send(events.EventFileContentUpdate, events.FileContentUpdate{
		FileName: req.FileName,
		Content:  content,
	})
}

// CodeChange replaces a file's content from the editor. Identical content
// is dropped without side effects, which also absorbs the echo of a
// watcher-adopted change bouncing back through a client.
func (e *Engine) CodeChange(c hub.Client, req events.CodeChangeRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}

	lr.mu.Lock()
	changed, err := lr.tree.SetFileContent(req.FileName, req.Code)
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}
	if !changed {
		return
	}

	if e.claimAll(lr.code, []claim{{path: req.FileName}}) {
		e.mirror(lr, []tree.Effect{{Op: tree.EffectWriteFile, Path: req.FileName, Content: req.Code}})
	}

	e.hub.BroadcastExcept(lr.code, c.ID(), events.EventFileSynced, events.FileSynced{
		FileName: req.FileName,
		Content:  req.Code,
	})
}

// ============================================================================
// Structure
// ============================================================================

// CreateFile adds a file, optionally under an existing folder, seeded with
// starter content for its extension.
func (e *Engine) CreateFile(c hub.Client, req events.CreateFileRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	path := tree.Join(req.ParentFolder, req.FileName)

	lr.mu.Lock()
	err := requireFolderLocked(lr.tree, req.ParentFolder)
	var effects []tree.Effect
	if err == nil {
		effects, err = lr.tree.CreateFile(path)
	}
	var snap tree.Snapshot
	if err == nil {
		snap = lr.tree.Snapshot()
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	if e.claimAll(lr.code, []claim{{path: path}}) {
		e.mirror(lr, effects)
	}
	e.fanOutTree(lr.code, snap, events.EventFileCreated, events.FileCreated{FileName: path})
}

// CreateFolder adds a folder, optionally under an existing folder.
func (e *Engine) CreateFolder(c hub.Client, req events.CreateFolderRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	path := tree.Join(req.ParentFolder, req.FolderName)

	lr.mu.Lock()
	err := requireFolderLocked(lr.tree, req.ParentFolder)
	var effects []tree.Effect
	if err == nil {
		effects, err = lr.tree.CreateFolder(path)
	}
	var snap tree.Snapshot
	if err == nil {
		snap = lr.tree.Snapshot()
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	if e.claimAll(lr.code, []claim{{path: path, folder: true}}) {
		e.mirror(lr, effects)
	}
	e.fanOutTree(lr.code, snap, events.EventFolderCreated, events.FolderCreated{FolderPath: path})
}

// requireFolderLocked verifies a parent path names an existing folder.
// The empty path is the root and always valid.
func requireFolderLocked(t *tree.Tree, parent string) error {
	if parent == "" {
		return nil
	}
	node, ok := t.Get(parent)
	if !ok || node.Type != tree.NodeFolder {
		return tree.NewNotFoundError(parent)
	}
	return nil
}

// DeleteItem removes a file or folder. Users whose active file vanished
// fall back to the first remaining file and receive its content.
func (e *Engine) DeleteItem(c hub.Client, req events.DeleteItemRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	path := req.ItemPath

	lr.mu.Lock()
	var claims []claim
	var itemType string
	isDir := false
	if node, ok := lr.tree.Get(path); ok {
		claims = subtreeClaims(lr.tree, path)
		itemType = string(node.Type)
		isDir = node.Type == tree.NodeFolder
	}
	effects, err := lr.tree.DeleteItem(path)
	var snap tree.Snapshot
	var moved map[string]string
	if err == nil {
		moved = retargetDeletedLocked(lr, path, isDir)
		snap = lr.tree.Snapshot()
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	if e.claimAll(lr.code, claims) {
		e.mirror(lr, effects)
	}
	e.fanOutTree(lr.code, snap, events.EventItemDeleted, events.ItemDeleted{
		ItemPath: path,
		Type:     itemType,
	})
	e.notifyFallback(lr.code, snap, moved)
}

// RenameItem re-keys a file or folder. The disk rename is strict: if it
// fails, the tree change is rolled back and only the sender hears about
// the attempt, since nothing actually changed.
func (e *Engine) RenameItem(c hub.Client, req events.RenameItemRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	oldPath, newPath := req.OldPath, req.NewPath

	lr.mu.Lock()
	before := subtreeClaims(lr.tree, oldPath)
	var itemType string
	if node, ok := lr.tree.Get(oldPath); ok {
		itemType = string(node.Type)
	}
	effects, err := lr.tree.RenameItem(oldPath, newPath)
	var snap tree.Snapshot
	var renamed map[string]string
	if err == nil {
		renamed = retargetRenamedLocked(lr, oldPath, newPath)
		snap = lr.tree.Snapshot()
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	claims := append(before, rewriteClaims(before, oldPath, newPath)...)
	if e.claimAll(lr.code, claims) {
		if derr := e.mirrorStrict(lr, effects); derr != nil {
			e.releaseAll(lr.code, claims)
			e.rollbackRename(lr, oldPath, newPath)
			logger.Error("Disk rename failed, change rolled back",
				logger.Room(lr.code),
				logger.OldPath(oldPath),
				logger.NewPath(newPath),
				logger.Err(derr))
			c.Send(events.EventFileError, events.FileError{
				Message: fmt.Sprintf("failed to rename %s to %s", oldPath, newPath),
			})
			return
		}
	}

	e.fanOutTree(lr.code, snap, events.EventItemRenamed, events.ItemRenamed{
		OldPath: oldPath,
		NewPath: newPath,
		Type:    itemType,
	})
	e.notifyRenamed(lr.code, renamed)
}

// MoveItem relocates a file or folder under a target folder, or to the
// root when the target is empty. Disk failures roll the move back like a
// failed rename.
func (e *Engine) MoveItem(c hub.Client, req events.MoveItemRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	source := req.SourcePath

	lr.mu.Lock()
	before := subtreeClaims(lr.tree, source)
	effects, err := lr.tree.MoveItem(source, req.TargetPath)
	var snap tree.Snapshot
	var renamed map[string]string
	newPath := ""
	if err == nil {
		newPath = effects[0].NewPath
		renamed = retargetRenamedLocked(lr, source, newPath)
		snap = lr.tree.Snapshot()
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	claims := append(before, rewriteClaims(before, source, newPath)...)
	if e.claimAll(lr.code, claims) {
		if derr := e.mirrorStrict(lr, effects); derr != nil {
			e.releaseAll(lr.code, claims)
			e.rollbackRename(lr, source, newPath)
			logger.Error("Disk move failed, change rolled back",
				logger.Room(lr.code),
				logger.OldPath(source),
				logger.NewPath(newPath),
				logger.Err(derr))
			c.Send(events.EventFileError, events.FileError{
				Message: fmt.Sprintf("failed to move %s", source),
			})
			return
		}
	}

	e.fanOutTree(lr.code, snap, events.EventItemMoved, events.ItemMoved{
		SourcePath: source,
		TargetPath: req.TargetPath,
		ItemType:   req.ItemType,
	})
	e.notifyRenamed(lr.code, renamed)
}

// rollbackRename undoes a tree rename whose disk half failed, restoring
// the active paths retargetRenamedLocked rewrote.
func (e *Engine) rollbackRename(lr *liveRoom, oldPath, newPath string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.closed {
		return
	}
	if _, err := lr.tree.RenameItem(newPath, oldPath); err != nil {
		logger.Warn("Failed to roll back rename",
			logger.Room(lr.code),
			logger.OldPath(oldPath),
			logger.NewPath(newPath),
			logger.Err(err))
		return
	}
	retargetRenamedLocked(lr, newPath, oldPath)
}

// ToggleFolder flips a folder's expanded hint, a piece of shared view
// state that never touches the disk.
func (e *Engine) ToggleFolder(c hub.Client, req events.ToggleFolderRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}

	lr.mu.Lock()
	expanded, err := lr.tree.ToggleFolder(req.FolderPath)
	var snap tree.Snapshot
	if err == nil {
		snap = lr.tree.Snapshot()
	}
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	e.fanOutTree(lr.code, snap, events.EventFolderToggled, events.FolderToggled{
		FolderPath: req.FolderPath,
		IsExpanded: expanded,
	})
}
