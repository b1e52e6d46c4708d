// Package sqlstore implements room.Store on a SQL database via GORM.
//
// It supports SQLite (single-node, default) and PostgreSQL backends through
// the same codebase. SQL databases have no native record TTL, so expiry is
// enforced lazily on reads plus a background sweeper that deletes expired
// rows.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/telemetry"
	"github.com/codehive-dev/codehive/pkg/room"
)

// Backend defines the supported database backends.
type Backend string

const (
	// BackendSQLite uses SQLite (single-node, default).
	BackendSQLite Backend = "sqlite"

	// BackendPostgres uses PostgreSQL.
	BackendPostgres Backend = "postgres"
)

// Config contains database configuration.
type Config struct {
	// Backend selects sqlite or postgres.
	Backend Backend

	// Path is the SQLite database file. ":memory:" opens an in-memory
	// database (used by tests).
	Path string

	// DSN is the PostgreSQL connection string.
	DSN string

	// TTL is how long room records live. Zero means room.DefaultTTL.
	TTL time.Duration

	// MaxOpenConns and MaxIdleConns tune the PostgreSQL connection pool.
	MaxOpenConns int
	MaxIdleConns int
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.TTL <= 0 {
		c.TTL = room.DefaultTTL
	}
	if c.Backend == BackendPostgres {
		if c.MaxOpenConns == 0 {
			c.MaxOpenConns = 25
		}
		if c.MaxIdleConns == 0 {
			c.MaxIdleConns = 5
		}
	}
}

// record is the GORM model for the rooms table.
type record struct {
	Code         string    `gorm:"primaryKey;size:6"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

// TableName overrides GORM's pluralized default to a stable name.
func (record) TableName() string { return "rooms" }

// Store is a room.Store backed by SQLite or PostgreSQL.
type Store struct {
	db      *gorm.DB
	ttl     time.Duration
	backend Backend

	sweepStop chan struct{}
	sweepDone sync.WaitGroup
	closeOnce sync.Once
}

// New opens the database, migrates the schema, and starts the expiry sweeper.
func New(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()

	var dialector gorm.Dialector
	switch cfg.Backend {
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		dsn := cfg.Path
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			// WAL for concurrent readers, busy_timeout to ride out short
			// single-writer contention.
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)

	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a dsn")
		}
		dialector = postgres.Open(cfg.DSN)

	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Backend == BackendPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	s := &Store{
		db:        db,
		ttl:       cfg.TTL,
		backend:   cfg.Backend,
		sweepStop: make(chan struct{}),
	}

	s.sweepDone.Add(1)
	go s.sweepLoop()

	logger.Debug("Opened sql room store",
		logger.KeyBackend, string(cfg.Backend),
		"ttl", cfg.TTL)

	return s, nil
}

// Create persists a new room. Returns room.ErrCodeTaken on a duplicate code.
func (s *Store) Create(ctx context.Context, r *room.Room) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "create", string(s.backend), telemetry.Room(r.Code))
	defer span.End()

	rec := record{
		Code:         r.Code,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueConstraintError(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return room.ErrCodeTaken
		}
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to insert room %q: %w", r.Code, err)
	}
	return nil
}

// Get returns the room with the given code, or room.ErrNotFound.
// Rows past their TTL are treated as missing and removed eagerly.
func (s *Store) Get(ctx context.Context, code string) (*room.Room, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "get", string(s.backend), telemetry.Room(code))
	defer span.End()

	var rec record
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&rec).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			telemetry.RecordError(ctx, err)
		}
		return nil, convertNotFoundError(err, fmt.Sprintf("failed to read room %q", code))
	}

	if s.expired(rec.CreatedAt) {
		// Expired but not swept yet; drop it and report not found.
		_ = s.db.WithContext(ctx).Delete(&record{}, "code = ?", code).Error
		return nil, room.ErrNotFound
	}

	return &room.Room{
		Code:         rec.Code,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

// Delete removes a room row.
func (s *Store) Delete(ctx context.Context, code string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "delete", string(s.backend), telemetry.Room(code))
	defer span.End()

	result := s.db.WithContext(ctx).Delete(&record{}, "code = ?", code)
	if result.Error != nil {
		telemetry.RecordError(ctx, result.Error)
		return fmt.Errorf("failed to delete room %q: %w", code, result.Error)
	}
	if result.RowsAffected == 0 {
		return room.ErrNotFound
	}
	return nil
}

// List returns all non-expired room rows.
func (s *Store) List(ctx context.Context) ([]*room.Room, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "list", string(s.backend))
	defer span.End()

	cutoff := time.Now().Add(-s.ttl)

	var recs []record
	err := s.db.WithContext(ctx).
		Where("created_at > ?", cutoff).
		Order("created_at").
		Find(&recs).Error
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms := make([]*room.Room, 0, len(recs))
	for _, rec := range recs {
		rooms = append(rooms, &room.Room{
			Code:         rec.Code,
			PasswordHash: rec.PasswordHash,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return rooms, nil
}

// Close stops the sweeper and closes the database connection.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.sweepStop)
		s.sweepDone.Wait()

		sqlDB, dbErr := s.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

// DB returns the underlying GORM database connection.
// This is useful for advanced queries or testing.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) expired(createdAt time.Time) bool {
	return time.Since(createdAt) > s.ttl
}

// sweepLoop periodically deletes expired rows so lapsed rooms do not
// accumulate between reads.
func (s *Store) sweepLoop() {
	defer s.sweepDone.Done()

	ticker := time.NewTicker(sweepInterval(s.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	cutoff := time.Now().Add(-s.ttl)

	result := s.db.Delete(&record{}, "created_at <= ?", cutoff)
	if result.Error != nil {
		logger.Warn("Failed to sweep expired rooms", logger.KeyError, result.Error.Error())
		return
	}
	if result.RowsAffected > 0 {
		logger.Debug("Swept expired rooms", "count", result.RowsAffected)
	}
}

// sweepInterval derives the sweeper period from the TTL, clamped to
// [1 minute, 1 hour].
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 24
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	return interval
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite or PostgreSQL unique constraint errors
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint") ||
		strings.Contains(errStr, "constraint failed")
}

// convertNotFoundError maps gorm.ErrRecordNotFound to room.ErrNotFound.
func convertNotFoundError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return room.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
