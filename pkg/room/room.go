// Package room defines persistent room records and the store abstraction
// backing them.
//
// A room is the unit of tenancy: a 6-character code, a one-way password hash,
// and a creation timestamp. Rooms are persisted with a TTL; everything else
// about a live room (members, file tree, working directory, shells) is
// in-memory state owned by the engine and is rebuilt from defaults when a
// persisted room is re-joined after its in-memory state was dropped.
package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"
)

// CodeLength is the length of a room code.
const CodeLength = 6

// codeAlphabet is the character set room codes are drawn from.
// Upper-case letters and digits only, so codes survive case-insensitive
// transports and are easy to read aloud.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// createRetries is how many fresh codes CreateRoom tries before giving up
// when generated codes keep colliding with existing rooms.
const createRetries = 5

// DefaultTTL is how long a persisted room record lives without being
// recreated. In-memory state has its own lifecycle (dropped when the last
// member leaves) and is not affected by this.
const DefaultTTL = 24 * time.Hour

// Room is the persisted record for a single room.
type Room struct {
	// Code is the unique 6-character upper-case alphanumeric identifier.
	Code string

	// PasswordHash is the bcrypt hash of the room password.
	// The plaintext password never leaves this package.
	PasswordHash string

	// CreatedAt is when the room was created.
	CreatedAt time.Time
}

// GenerateCode returns a new random room code.
// Codes are drawn from crypto/rand; uniqueness is enforced by the store's
// unique index, not here.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// CreateRoom allocates a fresh code, hashes the password, and persists the
// room. On a code collision it retries with a new code a bounded number of
// times before reporting ErrCodeTaken.
func CreateRoom(ctx context.Context, store Store, password string) (*Room, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for range createRetries {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}

		r := &Room{
			Code:         code,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.Create(ctx, r); err != nil {
			if IsCodeTaken(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("failed to persist room %q: %w", code, err)
		}
		return r, nil
	}

	return nil, fmt.Errorf("failed to allocate unique room code after %d attempts: %w", createRetries, lastErr)
}

// Authenticate looks a room up by code and verifies the password against the
// stored hash. Returns ErrNotFound when the room does not exist (or its
// record expired) and ErrBadPassword on a mismatch.
func Authenticate(ctx context.Context, store Store, code, password string) (*Room, error) {
	r, err := store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(password, r.PasswordHash) {
		return nil, ErrBadPassword
	}
	return r, nil
}
