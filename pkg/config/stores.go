package config

import (
	"fmt"

	"github.com/codehive-dev/codehive/pkg/room"
	"github.com/codehive-dev/codehive/pkg/room/badgerstore"
	"github.com/codehive-dev/codehive/pkg/room/sqlstore"
)

// CreateStore opens the room store selected by the configuration.
//
// The store only holds room records (codes, password hashes, expiry);
// live file trees stay in engine memory. Callers own the returned store
// and must Close it on shutdown.
func CreateStore(cfg StoreConfig) (room.Store, error) {
	switch cfg.Backend {
	case "badger", "":
		return badgerstore.New(badgerstore.Config{
			Path: cfg.Path,
			TTL:  cfg.TTL,
		})

	case "sqlite":
		return sqlstore.New(sqlstore.Config{
			Backend: sqlstore.BackendSQLite,
			Path:    cfg.Path,
			TTL:     cfg.TTL,
		})

	case "postgres":
		return sqlstore.New(sqlstore.Config{
			Backend:      sqlstore.BackendPostgres,
			DSN:          cfg.DSN,
			TTL:          cfg.TTL,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		})

	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}
