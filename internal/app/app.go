package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/qobil7681/atuin-history-tool/internal/config"
	"github.com/qobil7681/atuin-history-tool/internal/database"
	"github.com/qobil7681/atuin-history-tool/internal/encryption"
	"github.com/qobil7681/atuin-history-tool/internal/record"
	"github.com/qobil7681/atuin-history-tool/internal/vault"
)

// App is the application layer between the CLI and the record Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string identifiers, and manages the store lifecycle on
// Close: mutating commands leave a fresh snapshot in the vault.
type App struct {
	cfg       *config.Config
	store     record.Store
	vlt       record.Vault
	encryptor record.Encryptor
	service   *record.Service
	logFile   *os.File
	mutated   bool
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Append", "Verify")
// and prefixes the per-run id on every log line.
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	host, err := uuid.Parse(cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("invalid host_id %q: %w", cfg.HostID, err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.HostID, record.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	vlt, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	// A vault snapshot with more records than the local store means the
	// local database is stale (restored from an old copy, or another copy
	// of this host id wrote more). Appending from a stale tip would fork
	// the chain, so refuse to start.
	remoteVersion, err := vlt.GetSnapshotVersion(cfg.HostID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("checking vault snapshot version: %w", err)
	}
	localVersion, err := totalRecords(context.Background(), store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("checking local record count: %w", err)
	}
	if remoteVersion > localVersion {
		store.Close()
		return nil, fmt.Errorf("local store is behind vault snapshot (local=%d, vault=%d): restore from vault or re-initialize", localVersion, remoteVersion)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := operation + "-" + time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := record.NewService(store, enc, &slogAdapter{l: logger}, record.RealClock{}, record.V7Generator{}, host, cfg.UserID)

	return &App{
		cfg:       cfg,
		store:     store,
		vlt:       vlt,
		encryptor: enc,
		service:   svc,
		logFile:   logFile,
	}, nil
}

// Append encrypts payload and appends it to this host's chain for tag.
func (a *App) Append(ctx context.Context, tag, version string, payload []byte) (*record.Record, error) {
	a.mutated = true
	return a.service.AppendTagged(ctx, tag, version, payload)
}

// Log returns the records of a chain in chain order. rawHost selects the
// chain's host ("" means this host); rawSince resumes after a known record
// ("" means from the chain head).
func (a *App) Log(ctx context.Context, rawHost, tag, rawSince string) ([]*record.Record, error) {
	host, err := a.parseHost(rawHost)
	if err != nil {
		return nil, err
	}

	since := uuid.Nil
	if rawSince != "" {
		if since, err = uuid.Parse(rawSince); err != nil {
			return nil, fmt.Errorf("invalid since id %q: %w", rawSince, err)
		}
	}

	return a.service.Log(ctx, host, tag, since)
}

// Tip returns the current tip of a chain, or (nil, nil) if no chain exists.
func (a *App) Tip(ctx context.Context, rawHost, tag string) (*record.Record, error) {
	host, err := a.parseHost(rawHost)
	if err != nil {
		return nil, err
	}
	return a.service.Tip(ctx, host, tag)
}

// Status returns a summary of every chain in the store.
func (a *App) Status(ctx context.Context) ([]record.ChainInfo, error) {
	return a.service.Status(ctx)
}

// Verify walks a chain end to end and checks its integrity.
func (a *App) Verify(ctx context.Context, rawHost, tag string) (*record.ChainReport, error) {
	host, err := a.parseHost(rawHost)
	if err != nil {
		return nil, err
	}
	return a.service.Verify(ctx, host, tag)
}

// SetKV appends a key/value pair to this host's "kv" chain.
func (a *App) SetKV(ctx context.Context, key, value string) (*record.Record, error) {
	a.mutated = true
	return a.service.SetKV(ctx, key, value)
}

// GetKV returns the most recent value for key, or (nil, nil) if unset.
// The passphrase unlocks the private key for the duration of the call.
func (a *App) GetKV(ctx context.Context, passphrase, key string) (*record.KVPair, error) {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	return a.service.GetKV(ctx, dc, key)
}

// Unlock decrypts the private key for a read session.
func (a *App) Unlock(passphrase string) (record.DecryptionContext, error) {
	return a.encryptor.Unlock(passphrase)
}

// DecryptPayload decrypts a record's payload using an unlocked context.
func (a *App) DecryptPayload(dc record.DecryptionContext, rec *record.Record) ([]byte, error) {
	return a.service.DecryptPayload(dc, rec)
}

// Snapshot writes a consistent copy of the store to the vault immediately.
func (a *App) Snapshot(ctx context.Context) error {
	return a.snapshotToVault(ctx)
}

// Close finalizes the run and closes all resources. If this run mutated the
// store, a fresh snapshot is uploaded to the vault first.
func (a *App) Close() error {
	var firstErr error

	if a.mutated {
		if err := a.snapshotToVault(context.Background()); err != nil {
			firstErr = err
		}
	}

	if err := a.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// snapshotToVault snapshots the store to a temp file and uploads it with
// the current record count as the version.
func (a *App) snapshotToVault(ctx context.Context) error {
	version, err := totalRecords(ctx, a.store)
	if err != nil {
		return fmt.Errorf("counting records for snapshot: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "recordstore-snapshot-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(tmpPath)

	if err := a.store.SnapshotTo(ctx, tmpPath); err != nil {
		return fmt.Errorf("snapshotting store: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if err := a.vlt.PutSnapshot(a.cfg.HostID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot to vault: %w", err)
	}

	return nil
}

// parseHost parses a raw host id, defaulting to this host when empty.
func (a *App) parseHost(rawHost string) (uuid.UUID, error) {
	if rawHost == "" {
		return a.service.Host(), nil
	}
	host, err := uuid.Parse(rawHost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid host id %q: %w", rawHost, err)
	}
	return host, nil
}

// totalRecords sums the lengths of every chain in the store. The store is
// append-only, so this count is monotonic and serves as a snapshot version.
func totalRecords(ctx context.Context, store record.Store) (int64, error) {
	chains, err := store.ListChains(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range chains {
		total += c.Length
	}
	return total, nil
}
