// Package replay is the deterministic projection from the oplog to the
// materialized task set: spec.md section 4.E. It is the densest and most
// heavily tested component in this module.
//
// Grounded on the teacher's internal/storage/sqlite/resurrection.go
// (undelete-on-later-update precedent) and collision.go (field-by-field
// comparison between incoming and existing state), generalized from
// "collision resolution on JSONL import" to "canonical per-field
// last-write-wins on every replay, from scratch, every time".
package replay

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tchayen/oru/internal/fieldcodec"
	"github.com/tchayen/oru/internal/oplog"
	"github.com/tchayen/oru/internal/task"
)

// Merge inserts entries into the oplog with duplicate-id suppression and
// rebuilds the projection for every task_id the batch actually touched,
// all inside one transaction. It is the sole entry point external
// callers (the task service, the sync engine's pull loop) use to get
// entries into the system (spec.md section 4.E "Input"/"Effect").
func Merge(ctx context.Context, tx *sql.Tx, entries []task.Entry) error {
	affected, err := oplog.InsertBatch(ctx, tx, entries)
	if err != nil {
		return err
	}
	for taskID := range affected {
		if err := RebuildTask(ctx, tx, taskID); err != nil {
			return err
		}
	}
	return nil
}

// RebuildTask recomputes the projection row for taskID from every oplog
// entry on disk for that task_id, following the algorithm in spec.md
// section 4.E. If no create entry exists, the projection is left
// untouched (there is nothing to build from yet).
func RebuildTask(ctx context.Context, tx *sql.Tx, taskID string) error {
	entries, err := oplog.ForTask(ctx, tx, taskID)
	if err != nil {
		return err
	}

	createIdx := -1
	for i, e := range entries {
		if e.OpType == task.OpCreate {
			createIdx = i
			break
		}
	}
	if createIdx == -1 {
		return nil
	}

	t := applyCreate(taskID, entries[createIdx])

	latestUpdateTS := ""
	for _, e := range entries {
		if e.OpType == task.OpUpdate && e.Timestamp > latestUpdateTS {
			latestUpdateTS = e.Timestamp
		}
	}

	maxTS := entries[createIdx].Timestamp
	seenNotes := make(map[string]struct{}, len(t.Notes))
	for _, n := range t.Notes {
		seenNotes[n] = struct{}{}
	}

	for _, e := range entries[createIdx+1:] {
		if e.Timestamp > maxTS {
			maxTS = e.Timestamp
		}

		switch e.OpType {
		case task.OpDelete:
			if latestUpdateTS == "" || latestUpdateTS < e.Timestamp {
				t.DeletedAt = e.Timestamp
			}
			// else: logically overridden by a later-or-equal update; the
			// oplog entry is retained but has no effect on the projection.

		case task.OpUpdate:
			if applyUpdate(&t, e, seenNotes) {
				if t.DeletedAt != "" && e.Timestamp >= t.DeletedAt {
					t.DeletedAt = ""
				}
			}
		}
	}
	t.UpdatedAt = maxTS

	return upsert(ctx, tx, t)
}

// applyCreate parses the create payload into initial field values,
// applying the defaulting rules of spec.md section 4.E.c.
func applyCreate(taskID string, entry task.Entry) task.Task {
	t := task.Task{
		ID:        taskID,
		Title:     task.DefaultTitle,
		Status:    task.DefaultStatus,
		Priority:  task.DefaultPriority,
		Metadata:  map[string]any{},
		CreatedAt: entry.Timestamp,
		UpdatedAt: entry.Timestamp,
	}

	raw := fieldcodec.DecodeCreate(entry.Value)
	if raw == nil {
		return t
	}

	if v, ok := raw["title"].(string); ok && v != "" {
		t.Title = v
	}
	if v, ok := raw["status"].(string); ok && task.Status(v).IsValid() {
		t.Status = task.Status(v)
	}
	if v, ok := raw["priority"].(string); ok && task.Priority(v).IsValid() {
		t.Priority = task.Priority(v)
	}
	if v, ok := raw["owner"].(string); ok && strings.TrimSpace(v) != "" {
		t.Owner = v
	}
	if v, ok := raw["due_at"].(string); ok && v != "" {
		t.DueAt = v
	}
	if v, ok := raw["recurrence"].(string); ok && v != "" {
		t.Recurrence = v
	}
	t.BlockedBy = decodeStringList(raw["blocked_by"])
	t.Labels = decodeStringList(raw["labels"])
	if m, ok := raw["metadata"].(map[string]any); ok {
		t.Metadata = m
	}

	notes := decodeStringList(raw["notes"])
	t.Notes = make([]string, 0, len(notes))
	seen := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		if len(t.Notes) >= task.MaxNotes {
			break
		}
		seen[n] = struct{}{}
		t.Notes = append(t.Notes, n)
	}

	return t
}

// decodeStringList extracts a []string from a create-payload field that
// was decoded into a generic map[string]any, filtering non-string
// elements silently (spec.md section 4.E.c).
func decodeStringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, isStr := item.(string); isStr {
			out = append(out, s)
		}
	}
	return out
}

// applyUpdate applies a single update entry to t, returning true if the
// update was actually applied (so the caller can run the undelete check).
// Unknown fields are ignored for forward compatibility (spec.md section 7,
// ReplayAborted).
func applyUpdate(t *task.Task, e task.Entry, seenNotes map[string]struct{}) bool {
	switch e.Field {
	case task.FieldNotesClear:
		t.Notes = nil
		for k := range seenNotes {
			delete(seenNotes, k)
		}
		return true

	case task.FieldNotes:
		note := strings.TrimSpace(e.Value)
		if note == "" {
			return false
		}
		if _, dup := seenNotes[note]; dup {
			return false
		}
		if len(t.Notes) >= task.MaxNotes {
			return false
		}
		seenNotes[note] = struct{}{}
		t.Notes = append(t.Notes, note)
		return true

	case task.FieldTitle:
		t.Title = e.Value
		return true

	case task.FieldStatus:
		if !task.Status(e.Value).IsValid() {
			return false
		}
		t.Status = task.Status(e.Value)
		return true

	case task.FieldPriority:
		if !task.Priority(e.Value).IsValid() {
			return false
		}
		t.Priority = task.Priority(e.Value)
		return true

	case task.FieldOwner:
		if strings.TrimSpace(e.Value) == "" {
			t.Owner = ""
		} else {
			t.Owner = e.Value
		}
		return true

	case task.FieldDueAt:
		t.DueAt = e.Value
		return true

	case task.FieldRecurrence:
		t.Recurrence = e.Value
		return true

	case task.FieldBlockedBy:
		values, ok := fieldcodec.DecodeStringArray(e.Value)
		if !ok {
			return false
		}
		t.BlockedBy = values
		return true

	case task.FieldLabels:
		values, ok := fieldcodec.DecodeStringArray(e.Value)
		if !ok {
			return false
		}
		t.Labels = values
		return true

	case task.FieldMetadata:
		m, ok := fieldcodec.DecodeMetadata(e.Value)
		if !ok {
			return false
		}
		t.Metadata = m
		return true

	default:
		return false
	}
}

// upsert writes the rebuilt projection row, replacing whatever was there
// before (RebuildTask always recomputes from the full oplog, so a plain
// replace is correct and keeps replay idempotent).
func upsert(ctx context.Context, tx *sql.Tx, t task.Task) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, status, priority, owner, due_at, recurrence,
			blocked_by, labels, notes, metadata, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			priority = excluded.priority,
			owner = excluded.owner,
			due_at = excluded.due_at,
			recurrence = excluded.recurrence,
			blocked_by = excluded.blocked_by,
			labels = excluded.labels,
			notes = excluded.notes,
			metadata = excluded.metadata,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`,
		t.ID, t.Title, string(t.Status), string(t.Priority), t.Owner, t.DueAt, t.Recurrence,
		fieldcodec.EncodeStringArray(t.BlockedBy), fieldcodec.EncodeStringArray(t.Labels),
		fieldcodec.EncodeStringArray(t.Notes), fieldcodec.EncodeMetadata(t.Metadata),
		t.CreatedAt, t.UpdatedAt, t.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("replay: upsert task %s: %w", t.ID, err)
	}
	return nil
}
