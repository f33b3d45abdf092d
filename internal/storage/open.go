package storage

import (
	"context"
	"errors"
	"strings"

	logx "roomwatch/pkg/logx"
)

// Store is the minimal persistence API used by core/services.
//
// State blobs are opaque JSON documents owned by the session package.
// ReadState returns ErrNotFound when no record exists for the id.
type Store interface {
	ReadState(ctx context.Context, id string) ([]byte, error)
	WriteState(ctx context.Context, id string, blob []byte) error
	DeleteState(ctx context.Context, id string) error
	ListIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pgx":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
