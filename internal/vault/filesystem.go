package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qobil7681/atuin-history-tool/internal/record"
)

// FileSystemVault is a filesystem-based implementation of the Vault
// interface. It stores snapshots in a directory structure:
//
//	<root>/
//	  snapshots/
//	    <hostID>.db       (per-host database snapshot)
//	    <hostID>.version  (version marker for the snapshot)
type FileSystemVault struct {
	name        string
	root        string
	snapshotDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	snapshotDir := filepath.Join(root, "snapshots")

	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &FileSystemVault{
		name:        name,
		root:        root,
		snapshotDir: snapshotDir,
	}, nil
}

// PutSnapshot stores a database snapshot for a specific host along with a
// version marker. The snapshot is written first so a crash between the two
// writes leaves the version behind the data, never ahead of it.
func (v *FileSystemVault) PutSnapshot(hostID string, r io.Reader, size int64, version int64) error {
	destPath := filepath.Join(v.snapshotDir, hostID+".db")
	if err := v.writeFile(destPath, r, size); err != nil {
		return err
	}

	versionPath := filepath.Join(v.snapshotDir, hostID+".version")
	versionData := strconv.FormatInt(version, 10) + "\n"
	if err := os.WriteFile(versionPath, []byte(versionData), 0644); err != nil {
		return fmt.Errorf("failed to write snapshot version: %w", err)
	}

	return nil
}

// GetSnapshot retrieves the latest snapshot for a host and writes it to w.
func (v *FileSystemVault) GetSnapshot(hostID string, w io.Writer) error {
	srcPath := filepath.Join(v.snapshotDir, hostID+".db")
	return v.readFile(srcPath, w, fmt.Sprintf("snapshot not found for host: %s", hostID))
}

// GetSnapshotVersion returns the snapshot version for a host.
// Returns 0 if no snapshot has been stored for this host.
func (v *FileSystemVault) GetSnapshotVersion(hostID string) (int64, error) {
	versionPath := filepath.Join(v.snapshotDir, hostID+".version")

	data, err := os.ReadFile(versionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read snapshot version: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot version %q: %w", strings.TrimSpace(string(data)), err)
	}

	return version, nil
}

// ValidateSetup verifies the vault directory structure exists and is writable.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.snapshotDir)
	if err != nil {
		return fmt.Errorf("snapshot directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot path is not a directory: %s", v.snapshotDir)
	}

	// Verify we can write to the directory.
	probe := filepath.Join(v.snapshotDir, ".probe")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return fmt.Errorf("snapshot directory not writable: %w", err)
	}
	os.Remove(probe)

	return nil
}

// writeFile writes size bytes from r to destPath via a temp file and rename,
// so readers never observe a partially-written snapshot.
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(v.snapshotDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	return nil
}

// readFile copies the file at srcPath to w, returning notFoundMsg as the
// error text when the file does not exist.
func (v *FileSystemVault) readFile(srcPath string, w io.Writer, notFoundMsg string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	return nil
}

// Compile-time check that FileSystemVault implements record.Vault
var _ record.Vault = (*FileSystemVault)(nil)
