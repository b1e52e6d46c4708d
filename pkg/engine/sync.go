package engine

import (
	"context"
	"strings"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/internal/telemetry"
	"github.com/codehive-dev/codehive/pkg/arbiter"
	"github.com/codehive-dev/codehive/pkg/tree"
	"github.com/codehive-dev/codehive/pkg/watcher"
)

// handleWatch folds one observed disk change back into the room's tree.
// It runs on the watcher's goroutines; per-room ordering comes from the
// room mutex, and the engine mutex stays untouched here.
func (e *Engine) handleWatch(lr *liveRoom, ev watcher.Event) {
	e.metrics.WatcherEvent(ev.Op.String())

	_, span := telemetry.StartWatcherSpan(context.Background(),
		telemetry.Room(lr.code),
		telemetry.Path(ev.Path),
		telemetry.WatcherOp(ev.Op.String()),
		telemetry.Origin(string(arbiter.OriginTerminal)))
	defer span.End()

	switch ev.Op {
	case watcher.FileWritten:
		e.syncFileWritten(lr, ev.Path)
	case watcher.FileRemoved:
		e.syncFileRemoved(lr, ev.Path)
	case watcher.DirCreated:
		e.syncDirCreated(lr, ev.Path)
	case watcher.DirRemoved:
		e.syncDirRemoved(lr, ev.Path)
	}
}

// claimTerminal takes the terminal-origin token for one path, recording
// the suppression when an active editor token marks the event as the echo
// of an editor write.
func (e *Engine) claimTerminal(code, path string, folder bool) bool {
	if e.arb.Claim(arbiter.OriginTerminal, code, path, folder) {
		return true
	}
	e.metrics.SyncSuppressed(string(arbiter.OriginTerminal))
	return false
}

// syncFileWritten adopts a settled disk write: new files enter the tree
// with their disk content, known files get their content replaced. Content
// already matching the tree ends the cycle quietly, which is what absorbs
// re-flush echoes.
func (e *Engine) syncFileWritten(lr *liveRoom, path string) {
	if !e.claimTerminal(lr.code, path, false) {
		return
	}

	raw, err := lr.dir.ReadFile(path)
	if err != nil {
		// Deleted between the event and the read; the removal event is
		// on its way.
		logger.Debug("Settled file vanished before read",
			logger.Room(lr.code),
			logger.Path(path))
		return
	}
	content := strings.ToValidUTF8(raw, "�")

	lr.mu.Lock()
	if lr.closed {
		lr.mu.Unlock()
		return
	}
	changed := true
	if lr.tree.Has(path) {
		var serr error
		changed, serr = lr.tree.SetFileContent(path, content)
		if serr != nil {
			lr.mu.Unlock()
			logger.Debug("Ignored disk write shadowed by a folder",
				logger.Room(lr.code),
				logger.Path(path))
			return
		}
	} else if _, cerr := lr.tree.CreateFileWithContent(path, content); cerr != nil {
		lr.mu.Unlock()
		logger.Debug("Could not adopt file from disk",
			logger.Room(lr.code),
			logger.Path(path),
			logger.Err(cerr))
		return
	}
	if !changed {
		lr.mu.Unlock()
		return
	}
	snap := lr.tree.Snapshot()
	lr.mu.Unlock()

	e.hub.Broadcast(lr.code, events.EventFilesUpdate, snap)
	e.hub.Broadcast(lr.code, events.EventFileSynced, events.FileSynced{
		FileName: path,
		Content:  content,
	})
	logger.Debug("Adopted file write from disk",
		logger.Room(lr.code),
		logger.Path(path))
}

// syncFileRemoved mirrors a disk-side file deletion into the tree. A
// shell deleting the room's only file loses the argument: the file is
// written back from the tree.
func (e *Engine) syncFileRemoved(lr *liveRoom, path string) {
	if !e.claimTerminal(lr.code, path, false) {
		return
	}

	lr.mu.Lock()
	if lr.closed {
		lr.mu.Unlock()
		return
	}
	node, ok := lr.tree.Get(path)
	if !ok || node.Type != tree.NodeFile {
		lr.mu.Unlock()
		return
	}
	if _, err := lr.tree.DeleteItem(path); err != nil {
		var restore string
		keep := tree.IsCannotDeleteLastFile(err)
		if keep {
			restore, _ = lr.tree.FileContent(path)
		}
		lr.mu.Unlock()
		if keep {
			// Written without an editor claim: our own terminal token is
			// still active and would veto it, and the write-back echo
			// dies in the content comparison anyway.
			if _, werr := lr.dir.WriteFile(path, restore); werr != nil {
				logger.Warn("Failed to restore the room's last file",
					logger.Room(lr.code),
					logger.Path(path),
					logger.Err(werr))
			}
		}
		return
	}
	moved := retargetDeletedLocked(lr, path, false)
	snap := lr.tree.Snapshot()
	lr.mu.Unlock()

	e.fanOutTree(lr.code, snap, events.EventItemDeleted, events.ItemDeleted{
		ItemPath: path,
		Type:     string(tree.NodeFile),
	})
	e.notifyFallback(lr.code, snap, moved)
	logger.Debug("Adopted file removal from disk",
		logger.Room(lr.code),
		logger.Path(path))
}

// syncDirCreated adopts a directory that appeared on disk. The watcher
// scans adopted directories itself, so any files inside arrive as their
// own write events.
func (e *Engine) syncDirCreated(lr *liveRoom, path string) {
	if !e.claimTerminal(lr.code, path, true) {
		return
	}

	lr.mu.Lock()
	if lr.closed {
		lr.mu.Unlock()
		return
	}
	if _, err := lr.tree.CreateFolder(path); err != nil {
		lr.mu.Unlock()
		// AlreadyExists covers an editor mkdir echo surfacing after its
		// token expired.
		if !tree.IsAlreadyExists(err) {
			logger.Debug("Could not adopt directory from disk",
				logger.Room(lr.code),
				logger.Path(path),
				logger.Err(err))
		}
		return
	}
	snap := lr.tree.Snapshot()
	lr.mu.Unlock()

	e.fanOutTree(lr.code, snap, events.EventFolderCreated, events.FolderCreated{FolderPath: path})
	logger.Debug("Adopted directory from disk",
		logger.Room(lr.code),
		logger.Path(path))
}

// syncDirRemoved mirrors a disk-side directory deletion. When the folder
// held every remaining file the deletion is refused and the folder's
// files are written back to disk from the tree.
func (e *Engine) syncDirRemoved(lr *liveRoom, path string) {
	if !e.claimTerminal(lr.code, path, true) {
		return
	}

	lr.mu.Lock()
	if lr.closed {
		lr.mu.Unlock()
		return
	}
	node, ok := lr.tree.Get(path)
	if !ok || node.Type != tree.NodeFolder {
		lr.mu.Unlock()
		return
	}
	if _, err := lr.tree.DeleteItem(path); err != nil {
		type fileEntry struct {
			path    string
			content string
		}
		var restore []fileEntry
		if tree.IsCannotDeleteLastFile(err) {
			prefix := path + "/"
			for _, p := range lr.tree.Files() {
				if !strings.HasPrefix(p, prefix) {
					continue
				}
				if content, cerr := lr.tree.FileContent(p); cerr == nil {
					restore = append(restore, fileEntry{path: p, content: content})
				}
			}
		}
		lr.mu.Unlock()
		for _, entry := range restore {
			if _, werr := lr.dir.WriteFile(entry.path, entry.content); werr != nil {
				logger.Warn("Failed to restore files after folder removal",
					logger.Room(lr.code),
					logger.Path(entry.path),
					logger.Err(werr))
			}
		}
		return
	}
	moved := retargetDeletedLocked(lr, path, true)
	snap := lr.tree.Snapshot()
	lr.mu.Unlock()

	e.fanOutTree(lr.code, snap, events.EventItemDeleted, events.ItemDeleted{
		ItemPath: path,
		Type:     string(tree.NodeFolder),
	})
	e.notifyFallback(lr.code, snap, moved)
	logger.Debug("Adopted directory removal from disk",
		logger.Room(lr.code),
		logger.Path(path))
}
