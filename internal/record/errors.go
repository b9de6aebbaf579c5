package record

import "errors"

// Append and read failures surfaced by a Store. All are recoverable by the
// caller: conflicts and forks are resolved by re-fetching the tip and
// retrying, not-found by treating the chain as empty. Implementations wrap
// these with context; match with errors.Is.
var (
	// ErrConflict means a record with the same id already exists.
	ErrConflict = errors.New("record id already exists")

	// ErrOrphanParent means the supplied parent id does not exist.
	ErrOrphanParent = errors.New("parent record does not exist")

	// ErrFork means the supplied parent exists but is no longer the chain
	// tip — a concurrent writer extended the chain first.
	ErrFork = errors.New("parent is not the chain tip")

	// ErrNotFound means no chain exists for the requested (host, tag).
	ErrNotFound = errors.New("chain not found")
)
