package record

import (
	"context"

	"github.com/google/uuid"
)

// Store provides durable, append-only record persistence. Implementations
// must make each append atomic: the tip check-and-set and the insert happen
// in a single transaction, and readers never observe a partially-written
// record.
type Store interface {
	// Append persists a record and advances the (host, tag) chain tip to it.
	// CreatedAt is assigned by the store; any caller-supplied value is ignored.
	//
	// Fails with ErrConflict if a record with the same id exists, with
	// ErrOrphanParent if the parent does not exist, and with ErrFork if the
	// parent exists but is no longer the chain tip.
	Append(ctx context.Context, r *Record) error

	// Get returns a single record by id, or (nil, nil) if it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// GetTip returns the current tip of the (host, tag) chain, or (nil, nil)
	// if no chain exists. Clients use the tip to discover the parent for
	// their next append and to detect concurrent writers.
	GetTip(ctx context.Context, host uuid.UUID, tag string) (*Record, error)

	// GetChain returns a cursor over the (host, tag) chain in parent-to-child
	// order, starting immediately after since. Pass uuid.Nil to start from
	// the chain head. Fails with ErrNotFound if no chain exists.
	GetChain(ctx context.Context, host uuid.UUID, tag string, since uuid.UUID) (Cursor, error)

	// ListChains returns a summary of every (host, tag) chain in the store.
	ListChains(ctx context.Context) ([]ChainInfo, error)

	// SnapshotTo writes a complete, consistent copy of the store to path.
	SnapshotTo(ctx context.Context, path string) error

	// Close closes the store.
	Close() error
}

// Cursor is a lazy, restartable traversal of one chain. Records are fetched
// as the caller advances; a cursor abandoned mid-chain can be resumed by
// calling Store.GetChain with the last seen id as since.
type Cursor interface {
	// Next returns the next record in chain order, or (nil, nil) once the
	// chain is exhausted.
	Next(ctx context.Context) (*Record, error)

	// Close releases the cursor.
	Close() error
}

// ChainInfo summarizes one (host, tag) chain.
type ChainInfo struct {
	Host   uuid.UUID
	Tag    string
	Tip    uuid.UUID
	Length int64
}
