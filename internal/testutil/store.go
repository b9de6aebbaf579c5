package testutil

import (
	"testing"

	"github.com/qobil7681/atuin-history-tool/internal/database"
	"github.com/qobil7681/atuin-history-tool/internal/database/migrations"
	"github.com/qobil7681/atuin-history-tool/internal/record"
)

// NewTestStore creates a new in-memory SQLite store with schema applied and
// a fixed clock. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) record.Store {
	return NewTestStoreWithClock(t, FixedClock())
}

// NewTestStoreWithClock is NewTestStore with a caller-supplied clock.
func NewTestStoreWithClock(t *testing.T, clock record.Clock) record.Store {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB, clock)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
