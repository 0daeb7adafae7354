// Package sync implements the push/pull loop against an opaque remote:
// spec.md section 4.H. Push selects locally-authored entries past a
// high-water mark; pull drains a remote's cursor-based feed straight
// into the replay engine, which is idempotent by construction.
//
// Grounded on the teacher's internal/syncbranch/syncbranch.go
// branch-based push/pull loop (progress tracked via a persisted
// position, bounded retry loop) generalized here from git-branch merge
// to a cursor-based remote handed straight to replay, and on
// internal/merge/merge.go's "apply remote changes without clobbering
// local state" precedent for why pull reuses the replay engine rather
// than a bespoke merge routine.
package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tchayen/oru/internal/oplog"
	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/replay"
	"github.com/tchayen/oru/internal/storage"
	"github.com/tchayen/oru/internal/task"
)

// MaxPullIterations bounds the pull loop against a misbehaving or
// adversarial remote (spec.md section 4.H).
const MaxPullIterations = 1000

// RemoteBackend is the opaque push/pull contract a sync Engine talks to
// (spec.md section 4.I). A remote must be durable and deduplicate by
// oplog id on push, and must return entries in a stable order with a
// cursor that strictly advances until drained.
type RemoteBackend interface {
	Push(ctx context.Context, entries []task.Entry) error
	Pull(ctx context.Context, cursor string) (entries []task.Entry, nextCursor string, err error)
}

// Engine drives push/pull for one local database against one remote, on
// behalf of one device id.
type Engine struct {
	db       *storage.DB
	remote   RemoteBackend
	deviceID string
}

// New builds an Engine.
func New(db *storage.DB, remote RemoteBackend, deviceID string) *Engine {
	return &Engine{db: db, remote: remote, deviceID: deviceID}
}

// Push reads oplog entries authored by this device past the persisted
// high-water mark, sends them to the remote, and advances the mark on
// success. Returns the number of entries pushed.
func (e *Engine) Push(ctx context.Context) (int, error) {
	hwmStr, _, err := storage.GetMeta(ctx, e.db.SQL(), storage.PushHWMKey(e.deviceID))
	if err != nil {
		return 0, &oruerrors.StorageError{Op: "push.read_hwm", Err: err}
	}
	hwm, err := storage.ParseInt64(hwmStr)
	if err != nil {
		return 0, &oruerrors.StorageError{Op: "push.parse_hwm", Err: err}
	}

	entries, err := oplog.ForDeviceAfterRowID(ctx, e.db.SQL(), e.deviceID, hwm)
	if err != nil {
		return 0, &oruerrors.StorageError{Op: "push.read_entries", Err: err}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := e.remote.Push(ctx, entries); err != nil {
		return 0, &oruerrors.RemoteError{Op: "push", Err: err}
	}

	newHWM := entries[len(entries)-1].RowID
	if err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		return storage.SetMeta(ctx, tx, storage.PushHWMKey(e.deviceID), fmt.Sprint(newHWM))
	}); err != nil {
		return 0, &oruerrors.StorageError{Op: "push.write_hwm", Err: err}
	}
	return len(entries), nil
}

// Pull drains the remote's pull feed into the local replay engine,
// persisting the cursor as it advances, and returns the number of
// entries not authored by this device. It stops when the remote returns
// an empty batch or a cursor that fails to advance, and hard-fails after
// MaxPullIterations without either.
func (e *Engine) Pull(ctx context.Context) (int, error) {
	cursor, _, err := storage.GetMeta(ctx, e.db.SQL(), storage.PullCursorKey(e.deviceID))
	if err != nil {
		return 0, &oruerrors.StorageError{Op: "pull.read_cursor", Err: err}
	}

	remoteCount := 0
	for i := 0; i < MaxPullIterations; i++ {
		entries, nextCursor, err := e.remote.Pull(ctx, cursor)
		if err != nil {
			return remoteCount, &oruerrors.RemoteError{Op: "pull", Err: err}
		}
		if len(entries) == 0 {
			return remoteCount, nil
		}

		if err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
			return replay.Merge(ctx, tx, entries)
		}); err != nil {
			return remoteCount, &oruerrors.StorageError{Op: "pull.merge", Err: err}
		}

		for _, entry := range entries {
			if entry.DeviceID != e.deviceID {
				remoteCount++
			}
		}

		if nextCursor == cursor {
			return remoteCount, nil
		}
		cursor = nextCursor
		if err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
			return storage.SetMeta(ctx, tx, storage.PullCursorKey(e.deviceID), cursor)
		}); err != nil {
			return remoteCount, &oruerrors.StorageError{Op: "pull.write_cursor", Err: err}
		}
	}
	return remoteCount, oruerrors.ErrSyncLoopExceeded
}

// Sync runs Push then Pull.
func (e *Engine) Sync(ctx context.Context) (pushed, pulled int, err error) {
	pushed, err = e.Push(ctx)
	if err != nil {
		return pushed, 0, err
	}
	pulled, err = e.Pull(ctx)
	return pushed, pulled, err
}
