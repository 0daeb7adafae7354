// Package oplog appends entries to the append-only operation log. It never
// opens its own transaction: spec.md section 4.D requires every write to
// run inside the caller's transaction so the projection update and the
// oplog append commit atomically.
//
// Grounded on the teacher's internal/storage/sqlite/events.go AddComment,
// which inserts into an append-only events table inside withTx and then
// marks the issue dirty in the same transaction — generalized here from
// "one comment insert" to "one canonical oplog row per mutation".
package oplog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tchayen/oru/internal/idgen"
	"github.com/tchayen/oru/internal/task"
)

// Write assigns a fresh id and timestamp (if ts is empty, it uses
// task.NowUTC) to entry and inserts it into oplog, returning the
// fully-populated entry including its storage rowid. Must run inside tx.
func Write(ctx context.Context, tx *sql.Tx, entry task.Entry, ts string) (task.Entry, error) {
	if ts == "" {
		ts = task.NowUTC()
	}
	entry.ID = idgen.NewID()
	entry.Timestamp = ts

	res, err := tx.ExecContext(ctx, `
		INSERT INTO oplog (id, task_id, device_id, op_type, field, value, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.TaskID, entry.DeviceID, string(entry.OpType), entry.Field, entry.Value, entry.Timestamp)
	if err != nil {
		return task.Entry{}, fmt.Errorf("oplog: write entry: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return task.Entry{}, fmt.Errorf("oplog: read rowid: %w", err)
	}
	entry.RowID = rowID
	return entry, nil
}

// InsertBatch inserts a batch of already-authored entries (e.g. received
// from a remote during pull), suppressing duplicates by oplog id so the
// operation is idempotent. It runs inside tx and returns the set of
// task ids touched by rows that were actually new.
func InsertBatch(ctx context.Context, tx *sql.Tx, entries []task.Entry) (map[string]struct{}, error) {
	affected := make(map[string]struct{})
	for _, e := range entries {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO oplog (id, task_id, device_id, op_type, field, value, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.TaskID, e.DeviceID, string(e.OpType), e.Field, e.Value, e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("oplog: insert batch entry %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("oplog: rows affected for entry %s: %w", e.ID, err)
		}
		if n > 0 {
			affected[e.TaskID] = struct{}{}
		}
	}
	return affected, nil
}

// ForTask returns every oplog entry for taskID ordered by (timestamp ASC,
// id ASC), the canonical replay order from spec.md section 4.E.
func ForTask(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, taskID string) ([]task.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rowid, id, task_id, device_id, op_type, field, value, timestamp
		FROM oplog
		WHERE task_id = ?
		ORDER BY timestamp ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("oplog: read entries for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []task.Entry
	for rows.Next() {
		var e task.Entry
		var opType string
		if err := rows.Scan(&e.RowID, &e.ID, &e.TaskID, &e.DeviceID, &opType, &e.Field, &e.Value, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("oplog: scan entry: %w", err)
		}
		e.OpType = task.OpType(opType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ForTaskByRowID returns every oplog entry for taskID ordered by
// (timestamp ASC, rowid ASC), the order spec.md section 4.G's log()
// forwarder reports (insertion order as the tiebreaker rather than the
// lexicographic entry id, since this is a human-facing history view, not
// a replay pass).
func ForTaskByRowID(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, taskID string) ([]task.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rowid, id, task_id, device_id, op_type, field, value, timestamp
		FROM oplog
		WHERE task_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("oplog: read log for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []task.Entry
	for rows.Next() {
		var e task.Entry
		var opType string
		if err := rows.Scan(&e.RowID, &e.ID, &e.TaskID, &e.DeviceID, &opType, &e.Field, &e.Value, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("oplog: scan entry: %w", err)
		}
		e.OpType = task.OpType(opType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ForDeviceAfterRowID returns entries authored by deviceID with rowid >
// afterRowID, ordered ascending by rowid — the sync engine's push
// selection query (spec.md section 4.H).
func ForDeviceAfterRowID(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, deviceID string, afterRowID int64) ([]task.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rowid, id, task_id, device_id, op_type, field, value, timestamp
		FROM oplog
		WHERE device_id = ? AND rowid > ?
		ORDER BY rowid ASC
	`, deviceID, afterRowID)
	if err != nil {
		return nil, fmt.Errorf("oplog: read pending push entries: %w", err)
	}
	defer rows.Close()

	var out []task.Entry
	for rows.Next() {
		var e task.Entry
		var opType string
		if err := rows.Scan(&e.RowID, &e.ID, &e.TaskID, &e.DeviceID, &opType, &e.Field, &e.Value, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("oplog: scan entry: %w", err)
		}
		e.OpType = task.OpType(opType)
		out = append(out, e)
	}
	return out, rows.Err()
}
