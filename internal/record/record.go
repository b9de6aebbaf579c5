package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is a single entry in a per-(host, tag) hash-linked log.
// Records are append-only: once written they are never updated, and the
// Parent link never changes. The Data payload is encrypted by the client
// before it reaches the store; the store never inspects it.
type Record struct {
	ID        uuid.UUID // client-assigned, time-ordered (UUIDv7)
	Host      uuid.UUID // originating host
	Parent    uuid.UUID // previous record in the chain; uuid.Nil marks the chain head
	Timestamp int64     // event time in nanoseconds
	Version   string    // producing client/schema version, e.g. "v0"
	Tag       string    // logical log stream name, e.g. "history", "kv"
	Data      []byte    // opaque encrypted payload
	UserID    int64     // owning user
	CreatedAt time.Time // server-assigned at insert, immutable
}

// Validate checks that all client-supplied fields are populated.
// CreatedAt is excluded: it is assigned by the store at append time.
func (r *Record) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("record id must not be nil")
	}
	if r.Host == uuid.Nil {
		return fmt.Errorf("record host must not be nil")
	}
	if r.Tag == "" {
		return fmt.Errorf("record tag must not be empty")
	}
	if r.Version == "" {
		return fmt.Errorf("record version must not be empty")
	}
	if r.Data == nil {
		return fmt.Errorf("record data must not be nil")
	}
	if r.ID == r.Parent {
		return fmt.Errorf("record cannot be its own parent")
	}
	return nil
}

// IsHead returns true if this record starts its chain.
func (r *Record) IsHead() bool {
	return r.Parent == uuid.Nil
}
