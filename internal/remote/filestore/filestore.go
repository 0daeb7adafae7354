// Package filestore is the reference RemoteBackend implementation from
// spec.md section 4.I: a second local SQLite database file standing in
// for a remote, reusing the oplog table's append-and-index shape for its
// own push/pull history the way the teacher's internal/syncbranch
// treats an in-process git branch as the "remote" for git-based sync.
package filestore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/storage"
	"github.com/tchayen/oru/internal/task"
)

// pullBatchSize bounds how many entries a single Pull call returns, so a
// large backlog drains over several cursor-advancing calls rather than
// one unbounded read.
const pullBatchSize = 500

// Store is a RemoteBackend backed by its own SQLite file. It preserves
// every oplog field byte-exactly across a push/pull round trip, as
// spec.md section 6 requires of any remote.
type Store struct {
	db *storage.DB
}

// Open creates (if necessary) and opens the remote store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("filestore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Push durably records entries, deduplicating by oplog id so repeated
// pushes of the same entry are harmless (spec.md section 4.I contract).
func (s *Store) Push(ctx context.Context, entries []task.Entry) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO oplog (id, task_id, device_id, op_type, field, value, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, e.ID, e.TaskID, e.DeviceID, string(e.OpType), e.Field, e.Value, e.Timestamp)
			if err != nil {
				return &oruerrors.RemoteError{Op: "filestore.push", Err: err}
			}
		}
		return nil
	})
}

// Pull returns up to pullBatchSize entries with rowid strictly greater
// than cursor (cursor is the decimal string form of a rowid; empty means
// "from the start"), plus the cursor to resume from. Pulling again with
// the returned cursor yields only strictly new entries, draining to an
// empty batch with an unchanged cursor once caught up.
func (s *Store) Pull(ctx context.Context, cursor string) ([]task.Entry, string, error) {
	afterRowID := int64(0)
	if cursor != "" {
		var err error
		afterRowID, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, cursor, &oruerrors.RemoteError{Op: "filestore.pull", Err: fmt.Errorf("malformed cursor %q: %w", cursor, err)}
		}
	}

	rows, err := s.db.SQL().QueryContext(ctx, `
		SELECT rowid, id, task_id, device_id, op_type, field, value, timestamp
		FROM oplog
		WHERE rowid > ?
		ORDER BY rowid ASC
		LIMIT ?
	`, afterRowID, pullBatchSize)
	if err != nil {
		return nil, cursor, &oruerrors.RemoteError{Op: "filestore.pull", Err: err}
	}
	defer rows.Close()

	var out []task.Entry
	for rows.Next() {
		var e task.Entry
		var opType string
		if err := rows.Scan(&e.RowID, &e.ID, &e.TaskID, &e.DeviceID, &opType, &e.Field, &e.Value, &e.Timestamp); err != nil {
			return nil, cursor, &oruerrors.RemoteError{Op: "filestore.pull", Err: err}
		}
		e.OpType = task.OpType(opType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, cursor, &oruerrors.RemoteError{Op: "filestore.pull", Err: err}
	}
	if len(out) == 0 {
		return nil, cursor, nil
	}
	return out, strconv.FormatInt(out[len(out)-1].RowID, 10), nil
}

// Watch notifies changed whenever the remote's underlying file (or its
// WAL) is written by another process, so a long-running caller can pull
// promptly instead of polling on a fixed interval. It blocks until ctx
// is cancelled.
func (s *Store) Watch(ctx context.Context, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return &oruerrors.RemoteError{Op: "filestore.watch", Err: err}
	}
	defer w.Close()

	dir := filepath.Dir(s.db.Path())
	if err := w.Add(dir); err != nil {
		return &oruerrors.RemoteError{Op: "filestore.watch", Err: err}
	}

	base := filepath.Base(s.db.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if name == base || name == base+"-wal" {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return &oruerrors.RemoteError{Op: "filestore.watch", Err: err}
		}
	}
}
