package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/tchayen/oru/internal/oruerrors"
)

// SyncWithBackup snapshots the database via VACUUM INTO before running
// Sync; on failure it restores the snapshot over the live file, and on
// success it deletes the snapshot (spec.md section 4.I, "backup-wrapped
// sync"). Restoring while e's connection pool stays open only works
// because Open uses a single pooled connection in WAL mode; a caller
// driving concurrent readers through a separate *DB must close and
// reopen after a restore.
func SyncWithBackup(ctx context.Context, e *Engine) (pushed, pulled int, err error) {
	snapshotPath := e.db.Path() + ".sync-backup"

	if _, err := e.db.SQL().ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", snapshotPath)); err != nil {
		return 0, 0, &oruerrors.StorageError{Op: "sync.snapshot", Err: err}
	}

	pushed, pulled, syncErr := e.Sync(ctx)
	if syncErr != nil {
		if restoreErr := restoreSnapshot(e.db.Path(), snapshotPath); restoreErr != nil {
			return pushed, pulled, fmt.Errorf("sync failed (%w) and restore failed: %v", syncErr, restoreErr)
		}
		return pushed, pulled, syncErr
	}

	_ = os.Remove(snapshotPath)
	return pushed, pulled, nil
}

func restoreSnapshot(dbPath, snapshotPath string) error {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := os.WriteFile(dbPath, data, 0o600); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return os.Remove(snapshotPath)
}
