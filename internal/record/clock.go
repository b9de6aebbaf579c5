package record

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts record id generation so tests are deterministic.
// Generated ids must be unique and should be time-ordered so storage-engine
// indices stay sequential.
type IDGenerator interface {
	New() (uuid.UUID, error)
}

// V7Generator produces time-ordered UUIDv7 ids.
type V7Generator struct{}

func (V7Generator) New() (uuid.UUID, error) { return uuid.NewV7() }
