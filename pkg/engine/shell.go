package engine

import (
	"errors"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/protocol/events"
	"github.com/codehive-dev/codehive/pkg/hub"
	"github.com/codehive-dev/codehive/pkg/runner"
	"github.com/codehive-dev/codehive/pkg/terminal"
	"github.com/codehive-dev/codehive/pkg/tree"
)

const (
	// clearScreen wipes the visible screen and the scrollback and homes
	// the cursor. Sent as terminal output so the client renders it like
	// any other shell bytes.
	clearScreen = "\x1b[2J\x1b[3J\x1b[H"

	// spawnFailedBanner is shown in the sender's terminal when their
	// shell could not be started.
	spawnFailedBanner = "\r\n\x1b[31mFailed to start terminal session.\x1b[0m\r\n"
)

// ensureShell spawns the member's shell if absent and reports whether a
// shell is available afterwards. Spawn failures surface in the sender's
// terminal, not as file errors.
func (e *Engine) ensureShell(lr *liveRoom, c hub.Client) bool {
	had := lr.term.Has(c.UserID())
	if err := lr.term.Spawn(c.UserID(), lr.code, lr.dir.Root()); err != nil {
		if !errors.Is(err, terminal.ErrClosed) {
			logger.Error("Failed to spawn shell",
				logger.Room(lr.code),
				logger.User(c.UserID()),
				logger.Err(err))
			c.Send(events.EventTerminalOutput, spawnFailedBanner)
		}
		return false
	}
	if !had {
		e.metrics.PTYSpawned()
	}
	return true
}

// TerminalInit makes sure the sender has a live shell in the room's
// working directory.
func (e *Engine) TerminalInit(c hub.Client, req events.TerminalInitRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	e.ensureShell(lr, c)
}

// TerminalInput forwards raw keystrokes to the sender's shell. Input for
// a shell that is not running is dropped.
func (e *Engine) TerminalInput(c hub.Client, req events.TerminalInputRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	if err := lr.term.Write(c.UserID(), req.Input); err != nil {
		logger.Debug("Dropped terminal input",
			logger.Room(lr.code),
			logger.User(c.UserID()),
			logger.Err(err))
	}
}

// TerminalResize matches the sender's PTY geometry to their viewport.
func (e *Engine) TerminalResize(c hub.Client, req events.TerminalResizeRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	lr.term.Resize(c.UserID(), req.Cols, req.Rows)
}

// ExecuteCommand types a command into the sender's shell followed by a
// carriage return, as if the user had entered it.
func (e *Engine) ExecuteCommand(c hub.Client, req events.ExecuteCommandRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	if err := lr.term.ExecuteCommand(c.UserID(), req.Command); err != nil {
		logger.Debug("Dropped command for absent shell",
			logger.Room(lr.code),
			logger.User(c.UserID()),
			logger.Err(err))
	}
}

// ClearTerminal resets the sender's terminal view. The shell keeps
// running; only the rendered screen is wiped.
func (e *Engine) ClearTerminal(c hub.Client, req events.ClearTerminalRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	c.Send(events.EventTerminalOutput, clearScreen)
}

// KillProcess interrupts the foreground process in the sender's shell.
func (e *Engine) KillProcess(c hub.Client, req events.KillProcessRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	if err := lr.term.Interrupt(c.UserID()); err != nil {
		logger.Debug("No shell to interrupt",
			logger.Room(lr.code),
			logger.User(c.UserID()),
			logger.Err(err))
	}
}

// RunFile flushes a file to the working directory and executes the run
// command for its extension in the sender's shell.
func (e *Engine) RunFile(c hub.Client, req events.RunFileRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}
	e.run(lr, c, req.FileName)
}

// SaveAndRun runs the named file, or the sender's active file when the
// request names none.
func (e *Engine) SaveAndRun(c hub.Client, req events.SaveAndRunRequest) {
	lr := e.member(c, req.RoomCode)
	if lr == nil {
		return
	}

	path := req.FileName
	if path == "" {
		lr.mu.Lock()
		path = lr.active[c.UserID()]
		if path == "" {
			if first, ok := lr.tree.FirstFile(); ok {
				path = first
			}
		}
		lr.mu.Unlock()
	}
	if path == "" {
		c.Send(events.EventFileError, events.FileError{Message: "no file to run"})
		return
	}

	e.run(lr, c, path)
}

// run flushes one file and types its run command. The flush happens even
// when the extension turns out to be unsupported: the save half of
// save-and-run must not depend on the run half.
func (e *Engine) run(lr *liveRoom, c hub.Client, path string) {
	lr.mu.Lock()
	content, err := lr.tree.FileContent(path)
	lr.mu.Unlock()

	if err != nil {
		e.treeFail(c, err)
		return
	}

	// A vetoed claim means the disk copy is the newer one, freshly
	// adopted from a shell-side write. Running against it is correct.
	if e.claimAll(lr.code, []claim{{path: path}}) {
		e.mirror(lr, []tree.Effect{{Op: tree.EffectWriteFile, Path: path, Content: content}})
	}

	cmd, err := runner.CommandFor(path)
	if err != nil {
		if runner.IsUnsupported(err) {
			c.Send(events.EventTerminalOutput, "\r\n\x1b[31m"+err.Error()+"\x1b[0m\r\n")
			return
		}
		c.Send(events.EventFileError, events.FileError{Message: err.Error()})
		return
	}

	if !e.ensureShell(lr, c) {
		return
	}
	if err := lr.term.ExecuteCommand(c.UserID(), cmd); err != nil {
		logger.Debug("Failed to feed run command to shell",
			logger.Room(lr.code),
			logger.User(c.UserID()),
			logger.Command(cmd),
			logger.Err(err))
	}
}
