package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qobil7681/atuin-history-tool/internal/app"
	"github.com/qobil7681/atuin-history-tool/internal/config"
	"github.com/qobil7681/atuin-history-tool/internal/vault"
)

const testHostID = "11111111-1111-4111-8111-111111111111"

// testConfig builds a config backed by an in-memory store, the reversible
// test encryptor, and a filesystem vault under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig(testHostID, base)
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Encryption.Type = "test"
	return cfg
}

func TestApp_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.NewApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer a.Close()

	rec, err := a.Append(ctx, "history", "v0", []byte("make test"))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := a.Log(ctx, "", "history", "")
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("Log() = %v, want the appended record", records)
	}

	tip, err := a.Tip(ctx, "", "history")
	if err != nil {
		t.Fatalf("Tip() error = %v", err)
	}
	if tip == nil || tip.ID != rec.ID {
		t.Errorf("Tip() = %v, want %s", tip, rec.ID)
	}

	dc, err := a.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	plaintext, err := a.DecryptPayload(dc, records[0])
	if err != nil {
		t.Fatalf("DecryptPayload() error = %v", err)
	}
	if string(plaintext) != "make test" {
		t.Errorf("DecryptPayload() = %q, want %q", plaintext, "make test")
	}

	report, err := a.Verify(ctx, "", "history")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if report.Length != 1 {
		t.Errorf("Verify() length = %d, want 1", report.Length)
	}
}

func TestApp_KV(t *testing.T) {
	ctx := context.Background()
	a, err := app.NewApp(testConfig(t), "Test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.SetKV(ctx, "editor", "vim"); err != nil {
		t.Fatalf("SetKV() error = %v", err)
	}

	pair, err := a.GetKV(ctx, "", "editor")
	if err != nil {
		t.Fatalf("GetKV() error = %v", err)
	}
	if pair == nil || pair.Value != "vim" {
		t.Errorf("GetKV() = %+v, want value vim", pair)
	}
}

func TestApp_RejectsBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	a, err := app.NewApp(testConfig(t), "Test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Tip(ctx, "not-a-uuid", "history"); err == nil {
		t.Error("Tip() with bad host expected error")
	}
	if _, err := a.Log(ctx, "", "history", "not-a-uuid"); err == nil {
		t.Error("Log() with bad since expected error")
	}
}

func TestApp_CloseUploadsSnapshotAfterMutation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.NewApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	if _, err := a.Append(ctx, "history", "v0", []byte("ls")); err != nil {
		a.Close()
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := a.Append(ctx, "history", "v0", []byte("pwd")); err != nil {
		a.Close()
		t.Fatalf("Append() error = %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The vault must now hold a snapshot versioned by record count.
	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		t.Fatalf("NewVaultFromConfig() error = %v", err)
	}
	version, err := v.GetSnapshotVersion(testHostID)
	if err != nil {
		t.Fatalf("GetSnapshotVersion() error = %v", err)
	}
	if version != 2 {
		t.Errorf("snapshot version = %d, want 2", version)
	}

	var snapshot bytes.Buffer
	if err := v.GetSnapshot(testHostID, &snapshot); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.Len() == 0 {
		t.Error("snapshot is empty")
	}
}

func TestApp_CloseSkipsSnapshotWithoutMutation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.NewApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	if _, err := a.Status(ctx); err != nil {
		a.Close()
		t.Fatalf("Status() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		t.Fatalf("NewVaultFromConfig() error = %v", err)
	}
	version, err := v.GetSnapshotVersion(testHostID)
	if err != nil {
		t.Fatalf("GetSnapshotVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("snapshot version = %d after read-only run, want 0", version)
	}
}

func TestApp_RefusesStaleStore(t *testing.T) {
	cfg := testConfig(t)

	// Seed the vault with a snapshot claiming more records than the (fresh,
	// empty) in-memory store holds.
	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		t.Fatalf("NewVaultFromConfig() error = %v", err)
	}
	data := []byte("stale snapshot")
	if err := v.PutSnapshot(testHostID, bytes.NewReader(data), int64(len(data)), 5); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	_, err = app.NewApp(cfg, "Test")
	if err == nil {
		t.Fatal("NewApp() expected error when local store is behind vault snapshot")
	}
	if !strings.Contains(err.Error(), "behind vault snapshot") {
		t.Errorf("NewApp() error = %v, want it to mention the stale store", err)
	}
}

func TestApp_LogLinesCarryOperationID(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.NewApp(cfg, "Append")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	if _, err := a.Append(ctx, "history", "v0", []byte("ls")); err != nil {
		a.Close()
		t.Fatalf("Append() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "recordstore.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "\tAppend-") {
		t.Errorf("log lines missing operation-prefixed run id:\n%s", data)
	}
}

func TestApp_RejectsInvalidHostID(t *testing.T) {
	cfg := testConfig(t)
	cfg.HostID = "not-a-uuid"

	if _, err := app.NewApp(cfg, "Test"); err == nil {
		t.Error("NewApp() expected error for invalid host_id")
	}
}
