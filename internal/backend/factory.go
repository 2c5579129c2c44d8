package backend

import (
	"context"
	"fmt"

	"ledger/internal/ledger/memory"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.ForComponent(log.ComponentStorage)
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentStorage)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "path", config.SQLiteDBPath, "timeout", config.Timeout)
	return &Result{Store: repo, Cleanup: repo.Close}, nil
}

// createMemoryBackend keeps everything in process; data is lost on exit.
func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	var store *memory.Store
	if config.Timeout > 0 {
		store = memory.NewWithTimeout(config.Timeout)
	} else {
		store = memory.New()
	}

	f.logger.Warn("Initialized memory backend; data will not survive a restart")
	return &Result{Store: store, Cleanup: store.Close}, nil
}
