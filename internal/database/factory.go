package database

import (
	"fmt"
	"path/filepath"

	"github.com/qobil7681/atuin-history-tool/internal/config"
	"github.com/qobil7681/atuin-history-tool/internal/database/migrations"
	"github.com/qobil7681/atuin-history-tool/internal/record"
)

// NewStoreFromConfig creates a record.Store based on the database config type.
//
// For "sqlite" the schema must already be at the latest version (run the
// migrate command after upgrades). For "memory" the schema is applied on the
// spot — an in-memory database is always fresh.
func NewStoreFromConfig(cfg config.DatabaseConfig, hostID string, clock record.Clock) (record.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		dbPath := filepath.Join(cfg.DataDir, hostID+".db")
		store, err := NewSQLiteStore(dbPath, clock)
		if err != nil {
			return nil, err
		}
		if err := store.CheckMigrations(); err != nil {
			store.Close()
			return nil, fmt.Errorf("database schema out of date (run the migrate command): %w", err)
		}
		return store, nil
	case "memory":
		db, err := OpenConnection(":memory:")
		if err != nil {
			return nil, err
		}
		if err := migrations.MigrateUp(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
		return NewSQLiteStoreFromDB(db, clock), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
