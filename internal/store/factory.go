package store

import (
	"fmt"

	"fuellog-sync-service/internal/config"
)

// NewFromConfig builds the queue backend selected by configuration.
func NewFromConfig(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		path := cfg.FilePath
		if path == "" {
			path = "fuellog-queue.db"
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
