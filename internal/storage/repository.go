// Package storage is the SQLite implementation of ledger.Store.
//
// Every atomic unit is a BEGIN IMMEDIATE transaction on a single writer
// connection. Balances and spent totals are updated in place with SQL
// increments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DefaultTimeout   = 5 * time.Second
	busyTimeoutMilli = 5000
)

type SQLiteRepository struct {
	*Queries
	db      *sql.DB
	timeout time.Duration
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// DSN builds the connection string used for both the pool and migrations.
func DSN(dbPath string) string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		dbPath, busyTimeoutMilli)
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations. timeout bounds each atomic unit; zero means
// DefaultTimeout.
func NewSQLiteRepository(dbPath string, timeout time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dsn := DSN(dbPath)
	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has one writer; a single connection makes waiting for it a
	// pool wait that honours the context deadline.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Debug("SQLite ledger opened", "path", dbPath, "timeout", timeout)

	return &SQLiteRepository{
		Queries: New(db),
		db:      db,
		timeout: timeout,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Atomic implements ledger.Store. fn must only use the Tx it is given;
// the repository's own read methods share the single connection and
// would wait for the unit to finish.
func (r *SQLiteRepository) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	if err := fn(New(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		if ctx.Err() != nil && !errors.Is(err, core.ErrStorageUnavailable) {
			return core.Unavailable("atomic", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// classify wraps err with op, mapping timeouts and lock contention to
// core.ErrStorageUnavailable. Nil stays nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrStorageUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isBusy(err) {
		return core.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
