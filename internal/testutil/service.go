package testutil

import (
	"testing"

	"github.com/google/uuid"

	"github.com/qobil7681/atuin-history-tool/internal/encryption"
	"github.com/qobil7681/atuin-history-tool/internal/record"
)

// TestHost is the host id used by NewTestService.
var TestHost = uuid.MustParse("11111111-1111-4111-8111-111111111111")

// TestUserID is the user id used by NewTestService.
const TestUserID int64 = 1

// NewTestService creates a Service over the given store with deterministic
// ids and time, the reversible test encryptor, and no logging.
func NewTestService(t *testing.T, store record.Store) *record.Service {
	t.Helper()
	return record.NewService(
		store,
		encryption.NewTestEncryptor(),
		record.NewNopLogger(),
		FixedClock(),
		NewStubIDGenerator(),
		TestHost,
		TestUserID,
	)
}
