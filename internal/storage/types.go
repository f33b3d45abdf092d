package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("session state not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (one JSON document per session)
//   - "sqlite": SQLite database file (optional build tag)
//   - "postgres": PostgreSQL via DSN
//
// If Driver is empty or "none", storage is disabled and session state lives
// in memory only.
type Config struct {
	Driver      string
	Path        string        // file and sqlite drivers
	DSN         string        // postgres driver
	BusyTimeout time.Duration // sqlite only; 0 means default
}
