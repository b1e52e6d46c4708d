// Package badgerstore implements room.Store on BadgerDB.
//
// Each room is a single JSON value under "room:<CODE>". Record expiry uses
// Badger's native entry TTL, so expired rooms disappear without a sweeper.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/telemetry"
	"github.com/codehive-dev/codehive/pkg/room"
)

// prefixRoom is the key namespace for room records: "room:<CODE>".
const prefixRoom = "room:"

// Config holds BadgerDB store configuration.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool

	// TTL is how long room records live. Zero means room.DefaultTTL.
	TTL time.Duration
}

// Store is a room.Store backed by BadgerDB.
type Store struct {
	db  *badgerdb.DB
	ttl time.Duration
}

// New opens the database and returns the store.
func New(cfg Config) (*Store, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger store requires a path")
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	// Badger's default logger writes straight to stderr; route everything
	// through our own logging instead.
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %q: %w", cfg.Path, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = room.DefaultTTL
	}

	logger.Debug("Opened badger room store", logger.KeyBackend, "badger", "path", cfg.Path, "ttl", ttl)

	return &Store{db: db, ttl: ttl}, nil
}

// Create persists a new room with the configured TTL.
// Returns room.ErrCodeTaken when the code already exists.
func (s *Store) Create(ctx context.Context, r *room.Room) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "create", "badger", telemetry.Room(r.Code))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRoom(r)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		key := keyRoom(r.Code)

		_, err := txn.Get(key)
		if err == nil {
			return room.ErrCodeTaken
		}
		if err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to check room %q: %w", r.Code, err)
		}

		entry := badgerdb.NewEntry(key, data).WithTTL(s.ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("failed to store room %q: %w", r.Code, err)
		}
		return nil
	})
	// A taken code is a retryable outcome, not a storage fault.
	if err != nil && !errors.Is(err, room.ErrCodeTaken) {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Get returns the room with the given code, or room.ErrNotFound.
// Expired entries are reported as not found by Badger itself.
func (s *Store) Get(ctx context.Context, code string) (*room.Room, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "get", "badger", telemetry.Room(code))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r *room.Room

	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyRoom(code))
		if err == badgerdb.ErrKeyNotFound {
			return room.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read room %q: %w", code, err)
		}

		return item.Value(func(val []byte) error {
			decoded, err := decodeRoom(val)
			if err != nil {
				return err
			}
			r = decoded
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, room.ErrNotFound) {
			telemetry.RecordError(ctx, err)
		}
		return nil, err
	}

	return r, nil
}

// Delete removes a room record.
func (s *Store) Delete(ctx context.Context, code string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "delete", "badger", telemetry.Room(code))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		key := keyRoom(code)

		if _, err := txn.Get(key); err == badgerdb.ErrKeyNotFound {
			return room.ErrNotFound
		} else if err != nil {
			return fmt.Errorf("failed to check room %q: %w", code, err)
		}

		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete room %q: %w", code, err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, room.ErrNotFound) {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// List returns all live room records.
func (s *Store) List(ctx context.Context) ([]*room.Room, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "list", "badger")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []*room.Room

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRoom)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := decodeRoom(val)
				if err != nil {
					return err
				}
				rooms = append(rooms, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	return rooms, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// keyRoom generates the key for a room record: "room:<CODE>"
func keyRoom(code string) []byte {
	return []byte(prefixRoom + code)
}

// record is the stored JSON shape of a room.
type record struct {
	Code         string    `json:"code"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

func encodeRoom(r *room.Room) ([]byte, error) {
	data, err := json.Marshal(record{
		Code:         r.Code,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode room %q: %w", r.Code, err)
	}
	return data, nil
}

func decodeRoom(data []byte) (*room.Room, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode room record: %w", err)
	}
	return &room.Room{
		Code:         rec.Code,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}, nil
}
