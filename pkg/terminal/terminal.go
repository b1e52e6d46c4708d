// Package terminal manages the interactive shell sessions of a room.
//
// Every joined user gets exactly one PTY-backed shell rooted in the room's
// working directory. Output is private: bytes from a user's shell reach
// only that user. Shells that exit are replaced automatically after a
// short delay as long as the user is still in the room, because the shell
// is an editor tab detail users expect to just be there.
package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/codehive-dev/codehive/internal/logger"
)

const (
	// DefaultCols and DefaultRows are the initial shell geometry.
	DefaultCols uint16 = 80
	DefaultRows uint16 = 30

	// DefaultRespawnDelay is how long after a shell exit the replacement
	// is spawned.
	DefaultRespawnDelay = time.Second
)

// restartBanner is shown to the owning user when their shell dies.
const restartBanner = "\r\n\x1b[31mTerminal session ended. Restarting...\x1b[0m\r\n"

var (
	// ErrNoSession indicates the user has no running shell.
	ErrNoSession = errors.New("no terminal session for user")

	// ErrClosed indicates the manager has been shut down.
	ErrClosed = errors.New("terminal manager is closed")
)

// OutputSink delivers shell output to the owning user.
type OutputSink func(userID, data string)

// StillWanted reports whether the user should keep a shell. Respawns are
// gated on it so users who left the room do not get fresh shells.
type StillWanted func(userID string) bool

// Config tunes shell spawning.
type Config struct {
	// Shell overrides the platform default shell binary.
	Shell string

	// Cols and Rows override the initial shell geometry. Clients resize to
	// their real viewport right after terminal-init anyway.
	Cols uint16
	Rows uint16

	// RespawnDelay overrides DefaultRespawnDelay.
	RespawnDelay time.Duration
}

// Manager owns all shell sessions, keyed by user ID.
type Manager struct {
	cfg         Config
	sink        OutputSink
	stillWanted StillWanted

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Session is one user's shell.
type Session struct {
	userID string
	room   string
	dir    string

	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	cols   uint16
	rows   uint16
	killed bool
}

// NewManager creates a manager. The sink receives all shell output; the
// stillWanted callback gates automatic respawns.
func NewManager(cfg Config, sink OutputSink, stillWanted StillWanted) *Manager {
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.RespawnDelay <= 0 {
		cfg.RespawnDelay = DefaultRespawnDelay
	}
	return &Manager{
		cfg:         cfg,
		sink:        sink,
		stillWanted: stillWanted,
		sessions:    make(map[string]*Session),
	}
}

// shellPath returns the configured shell, or the platform default.
func (m *Manager) shellPath() string {
	if m.cfg.Shell != "" {
		return m.cfg.Shell
	}
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	return "bash"
}

// buildEnv returns the parent environment with the terminal variables
// forced. Duplicates are removed first: getenv returns the first match,
// so a stale inherited TERM would override ours.
func buildEnv() []string {
	forced := []string{"TERM=", "COLORTERM=", "FORCE_COLOR="}
	env := make([]string, 0, len(os.Environ())+3)
	for _, e := range os.Environ() {
		keep := true
		for _, prefix := range forced {
			if strings.HasPrefix(e, prefix) {
				keep = false
				break
			}
		}
		if keep {
			env = append(env, e)
		}
	}
	return append(env,
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"FORCE_COLOR=1",
	)
}

// Spawn starts a shell for the user in the given working directory.
// Idempotent: a user with a live shell keeps it.
func (m *Manager) Spawn(userID, room, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.sessions[userID]; ok {
		return nil
	}

	shell := m.shellPath()
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = buildEnv()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: m.cfg.Rows,
		Cols: m.cfg.Cols,
	})
	if err != nil {
		return fmt.Errorf("failed to start shell %q: %w", shell, err)
	}

	s := &Session{
		userID: userID,
		room:   room,
		dir:    dir,
		cmd:    cmd,
		ptmx:   ptmx,
		cols:   m.cfg.Cols,
		rows:   m.cfg.Rows,
	}
	m.sessions[userID] = s

	logger.Debug("Spawned shell",
		logger.User(userID),
		logger.Room(room),
		logger.Shell(shell))

	go m.pumpOutput(s)
	go m.watchExit(s)

	return nil
}

// pumpOutput streams shell output to the sink until the PTY closes.
func (m *Manager) pumpOutput(s *Session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			m.sink(s.userID, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// watchExit reaps the shell process. Unless the session was deliberately
// killed, the user sees a banner and gets a replacement shell after the
// respawn delay, provided they are still around to use it.
func (m *Manager) watchExit(s *Session) {
	err := s.cmd.Wait()
	s.ptmx.Close()

	s.mu.Lock()
	killed := s.killed
	s.mu.Unlock()

	m.mu.Lock()
	if m.sessions[s.userID] == s {
		delete(m.sessions, s.userID)
	}
	managerClosed := m.closed
	m.mu.Unlock()

	logger.Debug("Shell exited",
		logger.User(s.userID),
		logger.Room(s.room),
		logger.Err(err))

	if killed || managerClosed {
		return
	}

	m.sink(s.userID, restartBanner)

	time.AfterFunc(m.cfg.RespawnDelay, func() {
		if m.stillWanted != nil && !m.stillWanted(s.userID) {
			return
		}
		if err := m.Spawn(s.userID, s.room, s.dir); err != nil && !errors.Is(err, ErrClosed) {
			logger.Warn("Failed to respawn shell",
				logger.User(s.userID),
				logger.Room(s.room),
				logger.Err(err))
		}
	})
}

// Write sends raw input bytes to the user's shell.
func (m *Manager) Write(userID, data string) error {
	s, err := m.session(userID)
	if err != nil {
		return err
	}
	if _, err := s.ptmx.Write([]byte(data)); err != nil {
		return fmt.Errorf("failed to write to shell: %w", err)
	}
	return nil
}

// ExecuteCommand types a command line into the user's shell and presses
// enter.
func (m *Manager) ExecuteCommand(userID, command string) error {
	return m.Write(userID, command+"\r")
}

// Interrupt sends Ctrl-C to the user's shell, interrupting the foreground
// process through the controlling terminal.
func (m *Manager) Interrupt(userID string) error {
	return m.Write(userID, "\x03")
}

// Resize changes the shell geometry. Errors are transient (the shell may
// be mid-respawn) and are only logged.
func (m *Manager) Resize(userID string, cols, rows uint16) {
	s, err := m.session(userID)
	if err != nil {
		logger.Debug("Resize without session", logger.User(userID))
		return
	}

	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()

	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		logger.Debug("Failed to resize shell",
			logger.User(userID),
			logger.Cols(cols),
			logger.Rows(rows),
			logger.Err(err))
	}
}

// Kill terminates the user's shell without banner or respawn. Used when
// the user leaves the room.
func (m *Manager) Kill(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	s.terminate()

	logger.Debug("Killed shell", logger.User(userID), logger.Room(s.room))
}

// Has reports whether the user currently has a shell.
func (m *Manager) Has(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[userID]
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// Close kills every shell and rejects further spawns.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.terminate()
	}
}

func (m *Manager) session(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// terminate marks the session killed and tears the process down.
func (s *Session) terminate() {
	s.mu.Lock()
	s.killed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.ptmx.Close()
}
