package deploy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

const backupTimeLayout = "20060102T150405Z"

// BackupIfExists moves path aside into a timestamped sibling and returns a
// record of the move, or nil with no side effect when path does not exist.
// The backup is move-based rather than copy-based on purpose: it is fast
// and never duplicates the install on disk, at the cost of the original
// location being emptied for the new install. Backups accumulate without a
// retention policy.
func BackupIfExists(path, runID string) (*BackupRecord, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	now := time.Now().UTC()
	backup := path + "_backup_" + now.Format(backupTimeLayout)
	if _, err := os.Stat(backup); err == nil {
		// Same-second re-run; the run ID keeps the name unique.
		backup += "_" + runID
	}

	if err := os.Rename(path, backup); err != nil {
		return nil, fmt.Errorf("move %s aside: %w", path, err)
	}
	return &BackupRecord{OriginalPath: path, BackupPath: backup, Timestamp: now}, nil
}
