package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qobil7681/atuin-history-tool/internal/database/migrations"
	"github.com/qobil7681/atuin-history-tool/internal/record"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// recordColumns is the column list shared by every record query, in the
// order scanRecord expects.
const recordColumns = "id, host, parent, timestamp, version, tag, data, user_id, created_at"

// SQLiteStore implements the record.Store interface using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock record.Clock
	path  string
}

// NewSQLiteStore creates a new SQLite-backed record store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string, clock record.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{
		db:    db,
		clock: clock,
		path:  path,
	}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB, clock record.Clock) *SQLiteStore {
	return &SQLiteStore{
		db:    db,
		clock: clock,
		path:  "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time. A single connection avoids
	// SQLITE_BUSY between the tip check and the insert, and keeps
	// ":memory:" databases on one shared handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Append persists a record inside a single transaction: duplicate-id check,
// tip check-and-set, insert, and tip upsert all commit or fail together.
// The tip-match precondition is the fork-prevention mechanism — when two
// writers race to extend the same chain, exactly one commit succeeds and
// the other fails with record.ErrFork.
func (s *SQLiteStore) Append(ctx context.Context, r *record.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Reject duplicate ids.
	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM records WHERE id = ?", r.ID.String()).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for existing record: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("record %s: %w", r.ID, record.ErrConflict)
	}

	// Verify the caller-supplied parent against the current chain tip.
	var tip string
	err = tx.QueryRowContext(ctx, "SELECT tip FROM chain_tips WHERE host = ? AND tag = ?",
		r.Host.String(), r.Tag).Scan(&tip)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if r.Parent != uuid.Nil {
			if err := s.classifyBadParent(ctx, tx, r.Parent, uuid.Nil); err != nil {
				return err
			}
		}
	case err != nil:
		return fmt.Errorf("reading chain tip: %w", err)
	default:
		if r.Parent.String() != tip {
			tipID, perr := uuid.Parse(tip)
			if perr != nil {
				return fmt.Errorf("corrupt chain tip %q: %w", tip, perr)
			}
			if err := s.classifyBadParent(ctx, tx, r.Parent, tipID); err != nil {
				return err
			}
		}
	}

	createdAt := s.clock.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, host, parent, timestamp, version, tag, data, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID.String(),
		r.Host.String(),
		r.Parent.String(),
		r.Timestamp,
		r.Version,
		r.Tag,
		r.Data,
		r.UserID,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}

	// Advance the chain tip to the new record.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chain_tips (host, tag, tip, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(host, tag) DO UPDATE SET tip = excluded.tip, updated_at = excluded.updated_at
	`,
		r.Host.String(),
		r.Tag,
		r.ID.String(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("advancing chain tip: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	r.CreatedAt = createdAt
	return nil
}

// classifyBadParent decides between the two parent failure modes: the
// parent doesn't exist at all (ErrOrphanParent) or it exists but is no
// longer the chain tip (ErrFork — the caller lost a race). A nil parent
// is always a fork: it claims to start a chain that already has a tip.
func (s *SQLiteStore) classifyBadParent(ctx context.Context, tx *sql.Tx, parent, tip uuid.UUID) error {
	if parent == uuid.Nil {
		return fmt.Errorf("chain already started, tip %s: %w", tip, record.ErrFork)
	}

	var count int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM records WHERE id = ?", parent.String()).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for parent record: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("parent %s: %w", parent, record.ErrOrphanParent)
	}
	return fmt.Errorf("parent %s, tip %s: %w", parent, tip, record.ErrFork)
}

// Get returns a single record by id, or (nil, nil) if it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ?", id.String())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return rec, nil
}

// GetTip returns the current chain-tip record for (host, tag), or (nil, nil)
// if no chain exists.
func (s *SQLiteStore) GetTip(ctx context.Context, host uuid.UUID, tag string) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE id = (SELECT tip FROM chain_tips WHERE host = ? AND tag = ?)
	`, host.String(), tag)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No chain
		}
		return nil, fmt.Errorf("getting chain tip: %w", err)
	}
	return rec, nil
}

// GetChain returns a cursor over the (host, tag) chain in parent-to-child
// order, starting immediately after since. Pass uuid.Nil to start from the
// chain head.
func (s *SQLiteStore) GetChain(ctx context.Context, host uuid.UUID, tag string, since uuid.UUID) (record.Cursor, error) {
	// A chain exists iff it has a tip.
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM chain_tips WHERE host = ? AND tag = ?",
		host.String(), tag).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("checking for chain: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("chain (%s, %s): %w", host, tag, record.ErrNotFound)
	}

	if since != uuid.Nil {
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records WHERE id = ? AND host = ? AND tag = ?",
			since.String(), host.String(), tag).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("checking for since record: %w", err)
		}
		if count == 0 {
			return nil, fmt.Errorf("record %s not in chain (%s, %s): %w", since, host, tag, record.ErrNotFound)
		}
	}

	return &chainCursor{store: s, host: host, tag: tag, pos: since}, nil
}

// chainCursor walks a chain one record at a time by following child links:
// the child of X is the record whose parent is X within the same (host, tag).
// Each step is a single indexed lookup, so the walk is lazy and restartable
// from any record id.
type chainCursor struct {
	store  *SQLiteStore
	host   uuid.UUID
	tag    string
	pos    uuid.UUID // id of the last record returned; uuid.Nil before the head
	closed bool
}

func (c *chainCursor) Next(ctx context.Context) (*record.Record, error) {
	if c.closed {
		return nil, fmt.Errorf("cursor is closed")
	}

	row := c.store.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE host = ? AND tag = ? AND parent = ?",
		c.host.String(), c.tag, c.pos.String())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // End of chain
		}
		return nil, fmt.Errorf("reading next chain record: %w", err)
	}

	c.pos = rec.ID
	return rec, nil
}

func (c *chainCursor) Close() error {
	c.closed = true
	return nil
}

// ListChains returns a summary of every (host, tag) chain in the store.
func (s *SQLiteStore) ListChains(ctx context.Context) ([]record.ChainInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.host, t.tag, t.tip,
		       (SELECT COUNT(1) FROM records r WHERE r.host = t.host AND r.tag = t.tag)
		FROM chain_tips t
		ORDER BY t.host, t.tag
	`)
	if err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}
	defer rows.Close()

	var chains []record.ChainInfo
	for rows.Next() {
		var hostStr, tag, tipStr string
		var length int64
		if err := rows.Scan(&hostStr, &tag, &tipStr, &length); err != nil {
			return nil, fmt.Errorf("scanning chain info: %w", err)
		}

		host, err := uuid.Parse(hostStr)
		if err != nil {
			return nil, fmt.Errorf("parsing chain host %q: %w", hostStr, err)
		}
		tip, err := uuid.Parse(tipStr)
		if err != nil {
			return nil, fmt.Errorf("parsing chain tip %q: %w", tipStr, err)
		}

		chains = append(chains, record.ChainInfo{Host: host, Tag: tag, Tip: tip, Length: length})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}

	return chains, nil
}

// SnapshotTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) SnapshotTo(ctx context.Context, destPath string) error {
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans one record row in recordColumns order.
func scanRecord(row scannable) (*record.Record, error) {
	var (
		idStr, hostStr, parentStr string
		rec                       record.Record
	)
	err := row.Scan(&idStr, &hostStr, &parentStr, &rec.Timestamp,
		&rec.Version, &rec.Tag, &rec.Data, &rec.UserID, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing record id %q: %w", idStr, err)
	}
	if rec.Host, err = uuid.Parse(hostStr); err != nil {
		return nil, fmt.Errorf("parsing record host %q: %w", hostStr, err)
	}
	if rec.Parent, err = uuid.Parse(parentStr); err != nil {
		return nil, fmt.Errorf("parsing record parent %q: %w", parentStr, err)
	}

	return &rec, nil
}

// Compile-time check that SQLiteStore implements record.Store
var _ record.Store = (*SQLiteStore)(nil)
