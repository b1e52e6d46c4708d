// Package watcher surfaces working-directory changes made outside the
// editor, typically by shell commands, so they can be folded back into the
// room's in-memory tree.
//
// One watcher covers one room's working directory, recursively: every
// subdirectory gets its own watch, and directories created later are
// adopted on the fly. Writes are not reported immediately; a file must be
// quiet for a stability window first, because tools flush files in several
// bursts and half-written content must never reach the room.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codehive-dev/codehive/internal/logger"
)

// Op is the kind of change observed on disk.
type Op int

const (
	// FileWritten means a file's content settled after a create or write.
	FileWritten Op = iota + 1

	// FileRemoved means a file was deleted or renamed away.
	FileRemoved

	// DirCreated means a directory appeared.
	DirCreated

	// DirRemoved means a directory was deleted or renamed away.
	DirRemoved
)

// String returns a human-readable name for the op.
func (op Op) String() string {
	switch op {
	case FileWritten:
		return "file-written"
	case FileRemoved:
		return "file-removed"
	case DirCreated:
		return "dir-created"
	case DirRemoved:
		return "dir-removed"
	default:
		return "unknown"
	}
}

// Event is one observed change, with the path relative to the watched root
// in slash form.
type Event struct {
	Op   Op
	Path string
}

// Handler receives events. It is called from the watcher's goroutines;
// implementations do their own serialization.
type Handler func(Event)

const (
	// DefaultStability is how long a file must stay quiet before its
	// write is reported. Must stay below the sync token TTL so a
	// mirrored write surfaces while its suppression token is alive.
	DefaultStability = 200 * time.Millisecond

	// DefaultPollInterval is how often pending writes are checked for
	// stability.
	DefaultPollInterval = 100 * time.Millisecond
)

// Config tunes the stabilization windows.
type Config struct {
	Stability    time.Duration
	PollInterval time.Duration
}

// Watcher observes one directory tree.
type Watcher struct {
	root    string
	handler Handler
	fsw     *fsnotify.Watcher

	stability time.Duration
	poll      time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	dirs    map[string]struct{}

	stop      chan struct{}
	done      sync.WaitGroup
	closeOnce sync.Once
}

// New starts watching root and every directory below it. The existing tree
// produces no events; only changes after this call are reported.
func New(root string, cfg Config, handler Handler) (*Watcher, error) {
	if cfg.Stability <= 0 {
		cfg.Stability = DefaultStability
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      root,
		handler:   handler,
		fsw:       fsw,
		stability: cfg.Stability,
		poll:      cfg.PollInterval,
		pending:   make(map[string]time.Time),
		dirs:      make(map[string]struct{}),
		stop:      make(chan struct{}),
	}

	if err := w.watchExisting(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.done.Add(2)
	go w.eventLoop()
	go w.flushLoop()

	return w, nil
}

// Close stops the watcher and discards any pending writes. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		err = w.fsw.Close()
		w.done.Wait()

		w.mu.Lock()
		w.pending = make(map[string]time.Time)
		w.mu.Unlock()
	})
	return err
}

// watchExisting adds watches for root and all current subdirectories
// without emitting events.
func (w *Watcher) watchExisting(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.addWatch(path)
	})
}

func (w *Watcher) addWatch(dir string) error {
	w.mu.Lock()
	if _, ok := w.dirs[dir]; ok {
		w.mu.Unlock()
		return nil
	}
	w.dirs[dir] = struct{}{}
	w.mu.Unlock()

	return w.fsw.Add(dir)
}

// eventLoop classifies raw fsnotify events.
func (w *Watcher) eventLoop() {
	defer w.done.Done()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Debug("Watcher error", logger.KeyPath, w.root, logger.KeyError, err.Error())
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	rel, ok := w.relOf(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Gone already; a remove event will follow if it ever existed.
			return
		}
		if info.IsDir() {
			w.adoptDir(ev.Name, rel)
			return
		}
		w.markPending(rel)

	case ev.Op&fsnotify.Write == fsnotify.Write:
		w.markPending(rel)

	case ev.Op&fsnotify.Remove == fsnotify.Remove,
		ev.Op&fsnotify.Rename == fsnotify.Rename:
		// A rename delivers only the old name here; the new name arrives
		// as a separate create.
		w.handleGone(ev.Name, rel)
	}
}

// adoptDir registers a newly created directory and reports it, then scans
// its contents: entries may have been created before the watch was in
// place and would otherwise be missed.
func (w *Watcher) adoptDir(abs, rel string) {
	if err := w.addWatch(abs); err != nil {
		logger.Debug("Failed to watch new directory",
			logger.KeyPath, rel, logger.KeyError, err.Error())
		return
	}
	w.emit(Event{Op: DirCreated, Path: rel})

	entries, err := os.ReadDir(abs)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if ignored(entry.Name()) {
			continue
		}
		childAbs := filepath.Join(abs, entry.Name())
		childRel := rel + "/" + entry.Name()
		if entry.IsDir() {
			w.adoptDir(childAbs, childRel)
		} else {
			w.markPending(childRel)
		}
	}
}

func (w *Watcher) handleGone(abs, rel string) {
	w.mu.Lock()
	_, wasDir := w.dirs[abs]
	if wasDir {
		delete(w.dirs, abs)
		prefix := abs + string(filepath.Separator)
		for dir := range w.dirs {
			if strings.HasPrefix(dir, prefix) {
				delete(w.dirs, dir)
			}
		}
		relPrefix := rel + "/"
		for pendingRel := range w.pending {
			if strings.HasPrefix(pendingRel, relPrefix) {
				delete(w.pending, pendingRel)
			}
		}
	}
	delete(w.pending, rel)
	w.mu.Unlock()

	if wasDir {
		w.emit(Event{Op: DirRemoved, Path: rel})
	} else {
		w.emit(Event{Op: FileRemoved, Path: rel})
	}
}

func (w *Watcher) markPending(rel string) {
	w.mu.Lock()
	w.pending[rel] = time.Now()
	w.mu.Unlock()
}

// flushLoop reports pending writes once they have been stable long enough.
func (w *Watcher) flushLoop() {
	defer w.done.Done()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			now := time.Now()

			var ready []string
			w.mu.Lock()
			for rel, last := range w.pending {
				if now.Sub(last) >= w.stability {
					ready = append(ready, rel)
					delete(w.pending, rel)
				}
			}
			w.mu.Unlock()

			for _, rel := range ready {
				w.emit(Event{Op: FileWritten, Path: rel})
			}
		}
	}
}

func (w *Watcher) emit(ev Event) {
	select {
	case <-w.stop:
		return
	default:
	}
	w.handler(ev)
}

// relOf converts an absolute event path to slash-separated form relative
// to the root, filtering the root itself and dot-prefixed entries.
func (w *Watcher) relOf(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, segment := range strings.Split(rel, "/") {
		if ignored(segment) {
			return "", false
		}
	}
	return rel, true
}

// ignored reports whether a base name is excluded from watching.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".")
}
