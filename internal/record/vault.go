package record

import "io"

// Vault provides off-host storage for whole-store snapshots. The store is
// append-only, so snapshot versions are monotonic: a snapshot with more
// records always supersedes one with fewer. All operations use
// io.Reader/io.Writer for streaming so large databases are never loaded
// entirely into memory.
type Vault interface {
	// PutSnapshot stores a database snapshot for a specific host.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the snapshot for consistency checks.
	PutSnapshot(hostID string, r io.Reader, size int64, version int64) error

	// GetSnapshot retrieves the latest snapshot for a host and writes it to w.
	GetSnapshot(hostID string, w io.Writer) error

	// GetSnapshotVersion returns the stored snapshot version for a host.
	// Returns 0 if no snapshot has been stored for this host.
	GetSnapshotVersion(hostID string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
