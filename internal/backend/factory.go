// Package backend selects and wires the data store named by configuration.
package backend

import (
	"fmt"

	"hisab/internal/config"
	"hisab/internal/log"
	"hisab/internal/storage"
	"hisab/internal/storage/memory"
)

// Type names a supported data backend.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// IsValid returns true if the backend type is valid.
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Factory creates stores from application configuration.
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory.
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateStore builds the store named by cfg.DataBackend. The caller owns
// the returned store and must Close it.
func (f *Factory) CreateStore(cfg *config.Config) (storage.Store, error) {
	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch t {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return store, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}
}
