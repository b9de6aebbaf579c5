package database_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/qobil7681/atuin-history-tool/internal/config"
	"github.com/qobil7681/atuin-history-tool/internal/database"
	"github.com/qobil7681/atuin-history-tool/internal/database/migrations"
	"github.com/qobil7681/atuin-history-tool/internal/record"
	"github.com/qobil7681/atuin-history-tool/internal/testutil"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory store is ready to append", func(t *testing.T) {
		store, err := database.NewStoreFromConfig(
			config.DatabaseConfig{Type: "memory"},
			testHost.String(),
			testutil.FixedClock(),
		)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		defer store.Close()

		rec := testRecord(uuid.MustParse("00000000-0000-7000-8000-000000000001"), uuid.Nil, testHost, "history")
		if err := store.Append(context.Background(), rec); err != nil {
			t.Errorf("Append() on fresh memory store error = %v", err)
		}
	})

	t.Run("sqlite requires data_dir", func(t *testing.T) {
		_, err := database.NewStoreFromConfig(
			config.DatabaseConfig{Type: "sqlite"},
			testHost.String(),
			record.RealClock{},
		)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for sqlite without data_dir")
		}
	})

	t.Run("sqlite refuses an unmigrated database", func(t *testing.T) {
		// A fresh file store has no schema; the factory must refuse it
		// instead of failing on the first query.
		_, err := database.NewStoreFromConfig(
			config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()},
			testHost.String(),
			record.RealClock{},
		)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unmigrated sqlite database")
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		_, err := database.NewStoreFromConfig(
			config.DatabaseConfig{Type: "postgres"},
			testHost.String(),
			record.RealClock{},
		)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type")
		}
	})
}

func TestSQLiteStore_FileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/test.db"

	db, err := database.OpenConnection(path)
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("closing migration connection: %v", err)
	}

	open := func(t *testing.T) record.Store {
		t.Helper()
		store, err := database.NewSQLiteStore(path, testutil.FixedClock())
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		return store
	}

	store := open(t)

	rec := testRecord(uuid.MustParse("00000000-0000-7000-8000-000000000001"), uuid.Nil, testHost, "history")
	if err := store.Append(ctx, rec); err != nil {
		store.Close()
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen and confirm the record survived.
	reopened := open(t)
	defer reopened.Close()

	got, err := reopened.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got == nil || got.ID != rec.ID {
		t.Errorf("Get() after reopen = %v, want record %s", got, rec.ID)
	}
}

func TestSQLiteStore_SnapshotTo(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)

	rec := testRecord(uuid.MustParse("00000000-0000-7000-8000-000000000001"), uuid.Nil, testHost, "history")
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	path := t.TempDir() + "/snapshot.db"
	if err := store.SnapshotTo(ctx, path); err != nil {
		t.Fatalf("SnapshotTo() error = %v", err)
	}

	// The snapshot must be a complete, openable database.
	snap, err := database.NewSQLiteStore(path, testutil.FixedClock())
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snap.Close()

	got, err := snap.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() from snapshot error = %v", err)
	}
	if got == nil || got.ID != rec.ID {
		t.Errorf("Get() from snapshot = %v, want record %s", got, rec.ID)
	}
}
