// Package backend builds the ledger store selected by configuration.
package backend

import (
	"context"
	"time"

	"ledger/internal/ledger"
)

// CleanupFunc releases the resources behind a store.
type CleanupFunc func() error

// Result contains the store instance and its cleanup function.
type Result struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for store creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Timeout bounds every atomic unit. Zero keeps the store's default.
	Timeout time.Duration
}

// Type names a storage backend.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known.
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
