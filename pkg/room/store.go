package room

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a room does not exist or its record expired.
var ErrNotFound = errors.New("room not found")

// ErrCodeTaken is returned when creating a room whose code already exists.
var ErrCodeTaken = errors.New("room code already taken")

// ErrBadPassword is returned when a password does not match the stored hash.
var ErrBadPassword = errors.New("invalid room password")

// Store persists room records.
//
// Implementations enforce code uniqueness (Create returns ErrCodeTaken on a
// duplicate) and record expiry (Get returns ErrNotFound for expired rooms).
// List and Delete exist for the admin CLI; the engine itself only creates and
// looks up rooms.
type Store interface {
	// Create persists a new room. Returns ErrCodeTaken if the code exists.
	Create(ctx context.Context, r *Room) error

	// Get returns the room with the given code, or ErrNotFound.
	Get(ctx context.Context, code string) (*Room, error)

	// Delete removes a room record. Returns ErrNotFound if absent.
	Delete(ctx context.Context, code string) error

	// List returns all live (non-expired) room records.
	List(ctx context.Context) ([]*Room, error)

	// Close releases the underlying database.
	Close() error
}

// IsNotFound reports whether err indicates a missing room.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCodeTaken reports whether err indicates a room code collision.
func IsCodeTaken(err error) bool {
	return errors.Is(err, ErrCodeTaken)
}
