// Package arbiter breaks write loops between the two mirrors of a room's
// files: the in-memory tree fed by editors and the on-disk working
// directory fed by shell commands.
//
// Every cross-mirror write first claims a sync token keyed by origin, room,
// and path. While a token is active, writes for the same (room, path)
// arriving from the opposite origin are suppressed, because they are the
// echo of the claimed write coming back through the other mirror. Tokens
// auto-expire after a short stability window.
package arbiter

import (
	"strings"
	"sync"
	"time"
)

// Origin identifies which mirror initiated a write.
type Origin string

const (
	// OriginEditor marks writes flowing from the editor into the
	// working directory.
	OriginEditor Origin = "editor"

	// OriginTerminal marks writes flowing from the filesystem watcher
	// into the in-memory tree.
	OriginTerminal Origin = "terminal"
)

// opposite returns the other origin.
func (o Origin) opposite() Origin {
	if o == OriginEditor {
		return OriginTerminal
	}
	return OriginEditor
}

// DefaultTTL is how long a claimed token suppresses the opposite
// direction. An echo that surfaces after expiry is still harmless: the
// mirrored content matches by then, so it dies in the content comparison.
const DefaultTTL = 300 * time.Millisecond

// Arbiter owns the active sync-token set for all rooms.
type Arbiter struct {
	mu      sync.Mutex
	ttl     time.Duration
	tokens  map[string]*time.Timer
	stopped bool
}

// New creates an arbiter. A non-positive ttl means DefaultTTL.
func New(ttl time.Duration) *Arbiter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Arbiter{
		ttl:    ttl,
		tokens: make(map[string]*time.Timer),
	}
}

// token builds the key <origin>[-folder]-<room>-<path>.
func token(origin Origin, folder bool, room, path string) string {
	var b strings.Builder
	b.WriteString(string(origin))
	if folder {
		b.WriteString("-folder")
	}
	b.WriteByte('-')
	b.WriteString(room)
	b.WriteByte('-')
	b.WriteString(path)
	return b.String()
}

// Claim requests permission to write (room, path) from the given origin.
// It returns false when any opposite-origin token for the pair is active,
// meaning the write is an echo and must be dropped. Otherwise it records
// the origin's own token, restarting its expiry if already present, and
// returns true.
func (a *Arbiter) Claim(origin Origin, room, path string, folder bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return false
	}

	opp := origin.opposite()
	if _, active := a.tokens[token(opp, false, room, path)]; active {
		return false
	}
	if _, active := a.tokens[token(opp, true, room, path)]; active {
		return false
	}

	key := token(origin, folder, room, path)
	if timer, ok := a.tokens[key]; ok {
		timer.Stop()
	}
	a.tokens[key] = time.AfterFunc(a.ttl, func() {
		a.expire(key)
	})
	return true
}

// Release drops a token before its expiry. Used by tests and by rollback
// paths that never performed the claimed write.
func (a *Arbiter) Release(origin Origin, room, path string, folder bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := token(origin, folder, room, path)
	if timer, ok := a.tokens[key]; ok {
		timer.Stop()
		delete(a.tokens, key)
	}
}

// ReleaseRoom drops every token belonging to a room, called when the room
// is torn down.
func (a *Arbiter) ReleaseRoom(room string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prefixes := []string{
		token(OriginEditor, false, room, ""),
		token(OriginEditor, true, room, ""),
		token(OriginTerminal, false, room, ""),
		token(OriginTerminal, true, room, ""),
	}
	for key, timer := range a.tokens {
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				timer.Stop()
				delete(a.tokens, key)
				break
			}
		}
	}
}

// Active reports whether a specific token is currently held.
func (a *Arbiter) Active(origin Origin, room, path string, folder bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.tokens[token(origin, folder, room, path)]
	return ok
}

// Len returns the number of active tokens.
func (a *Arbiter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.tokens)
}

// Stop cancels every pending expiry and rejects further claims.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, timer := range a.tokens {
		timer.Stop()
		delete(a.tokens, key)
	}
	a.stopped = true
}

func (a *Arbiter) expire(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.tokens, key)
}
