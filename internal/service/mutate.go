package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tchayen/oru/internal/fieldcodec"
	"github.com/tchayen/oru/internal/oplog"
	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/replay"
	"github.com/tchayen/oru/internal/task"
	"github.com/tchayen/oru/internal/taskrepo"
	"github.com/tchayen/oru/internal/validate"
)

// Update resolves id, validates and applies p, writes one oplog entry per
// field set on p, runs maybeSpawn, and returns the resulting task.
func (s *Service) Update(ctx context.Context, id string, p UpdatePartial) (task.Task, error) {
	var result task.Task
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := taskrepo.Get(ctx, tx, id)
		if err != nil {
			return err
		}

		if p.BlockedBy != nil {
			if err := s.validateBlockedBy(ctx, tx, current.ID, *p.BlockedBy); err != nil {
				return err
			}
		}
		if p.DueAt != nil {
			if err := validateDueAt(*p.DueAt); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.writeFieldUpdates(ctx, tx, current, p, now); err != nil {
			return err
		}
		if err := replay.RebuildTask(ctx, tx, current.ID); err != nil {
			return wrapStorage("update.rebuild", err)
		}

		updated, err := taskrepo.Get(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if err := s.maybeSpawn(ctx, tx, updated); err != nil {
			return err
		}
		result, err = taskrepo.Get(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	return result, nil
}

// writeFieldUpdates writes one oplog entry per non-nil field set on p,
// regardless of whether the value differs from current (a caller that
// wants a field left untouched leaves its pointer nil). Metadata merges
// shallowly with current instead of replacing it wholesale.
func (s *Service) writeFieldUpdates(ctx context.Context, tx *sql.Tx, current task.Task, p UpdatePartial, now string) error {
	write := func(field, value string) error {
		entry := task.Entry{TaskID: current.ID, DeviceID: s.deviceID, OpType: task.OpUpdate, Field: field, Value: value}
		_, err := oplog.Write(ctx, tx, entry, now)
		return wrapStorage("update.write."+field, err)
	}

	if p.Title != nil {
		title := validate.SanitizeTitle(*p.Title)
		if err := validate.Title(title); err != nil {
			return tooLong(err)
		}
		if err := write(task.FieldTitle, title); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if err := write(task.FieldStatus, string(*p.Status)); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := write(task.FieldPriority, string(*p.Priority)); err != nil {
			return err
		}
	}
	if p.Owner != nil {
		owner := strings.TrimSpace(*p.Owner)
		if err := write(task.FieldOwner, owner); err != nil {
			return err
		}
	}
	if p.DueAt != nil {
		if err := write(task.FieldDueAt, *p.DueAt); err != nil {
			return err
		}
	}
	if p.Recurrence != nil {
		if err := write(task.FieldRecurrence, *p.Recurrence); err != nil {
			return err
		}
	}
	if p.BlockedBy != nil {
		// Count is already enforced by validateBlockedBy, which every
		// caller of writeFieldUpdates runs first when p.BlockedBy != nil.
		if err := write(task.FieldBlockedBy, fieldcodec.EncodeStringArray(*p.BlockedBy)); err != nil {
			return err
		}
	}
	if p.Labels != nil {
		if err := validateLabels(*p.Labels); err != nil {
			return err
		}
		if err := write(task.FieldLabels, fieldcodec.EncodeStringArray(*p.Labels)); err != nil {
			return err
		}
	}
	if p.Metadata != nil {
		merged := make(map[string]any, len(current.Metadata)+len(p.Metadata))
		for k, v := range current.Metadata {
			merged[k] = v
		}
		for k, v := range p.Metadata {
			merged[k] = v
		}
		if err := validateMetadata(merged); err != nil {
			return err
		}
		if err := write(task.FieldMetadata, fieldcodec.EncodeMetadata(merged)); err != nil {
			return err
		}
	}
	return nil
}

// AddNote appends note (trimmed) to id's notes, writing one notes oplog
// entry. A note that is empty after trimming is a no-op: no entry is
// written.
func (s *Service) AddNote(ctx context.Context, id, note string) (task.Task, error) {
	return s.mutateNotes(ctx, id, func(tx *sql.Tx, t task.Task, now string) error {
		trimmed := strings.TrimSpace(note)
		if trimmed == "" {
			return nil
		}
		if err := validate.Note(trimmed); err != nil {
			return tooLong(err)
		}
		if err := validate.NoteCount(len(t.Notes) + 1); err != nil {
			return tooLong(err)
		}
		return s.writeNote(ctx, tx, t.ID, trimmed, now)
	})
}

// ClearNotes empties id's notes as of now.
func (s *Service) ClearNotes(ctx context.Context, id string) (task.Task, error) {
	return s.mutateNotes(ctx, id, func(tx *sql.Tx, t task.Task, now string) error {
		return s.writeNotesClear(ctx, tx, t.ID, now)
	})
}

// ReplaceNotes replaces id's notes wholesale: a notes_clear entry
// followed by one notes entry per (trimmed, deduped) item.
func (s *Service) ReplaceNotes(ctx context.Context, id string, notes []string) (task.Task, error) {
	return s.mutateNotes(ctx, id, func(tx *sql.Tx, t task.Task, now string) error {
		deduped := dedupedTrimmedNotes(notes)
		if err := validateNotes(deduped); err != nil {
			return err
		}
		if err := s.writeNotesClear(ctx, tx, t.ID, now); err != nil {
			return err
		}
		for _, n := range deduped {
			if err := s.writeNote(ctx, tx, t.ID, n, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateWithNote applies p and appends note in the same transaction.
func (s *Service) UpdateWithNote(ctx context.Context, id string, p UpdatePartial, note string) (task.Task, error) {
	return s.updateAndNote(ctx, id, p, note, false)
}

// ClearNotesAndUpdate clears notes, applies p, then optionally appends
// note, all in the same transaction.
func (s *Service) ClearNotesAndUpdate(ctx context.Context, id string, p UpdatePartial, note string) (task.Task, error) {
	return s.updateAndNote(ctx, id, p, note, true)
}

func (s *Service) updateAndNote(ctx context.Context, id string, p UpdatePartial, note string, clearFirst bool) (task.Task, error) {
	var result task.Task
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := taskrepo.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.BlockedBy != nil {
			if err := s.validateBlockedBy(ctx, tx, current.ID, *p.BlockedBy); err != nil {
				return err
			}
		}
		if p.DueAt != nil {
			if err := validateDueAt(*p.DueAt); err != nil {
				return err
			}
		}

		now := s.now()
		if clearFirst {
			if err := s.writeNotesClear(ctx, tx, current.ID, now); err != nil {
				return err
			}
		}
		if err := s.writeFieldUpdates(ctx, tx, current, p, now); err != nil {
			return err
		}
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			existing := 0
			if !clearFirst {
				existing = len(current.Notes)
			}
			if err := validate.Note(trimmed); err != nil {
				return tooLong(err)
			}
			if err := validate.NoteCount(existing + 1); err != nil {
				return tooLong(err)
			}
			if err := s.writeNote(ctx, tx, current.ID, trimmed, now); err != nil {
				return err
			}
		}
		if err := replay.RebuildTask(ctx, tx, current.ID); err != nil {
			return wrapStorage("update_with_note.rebuild", err)
		}

		updated, err := taskrepo.Get(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		if err := s.maybeSpawn(ctx, tx, updated); err != nil {
			return err
		}
		result, err = taskrepo.Get(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	return result, nil
}

func (s *Service) mutateNotes(ctx context.Context, id string, apply func(tx *sql.Tx, t task.Task, now string) error) (task.Task, error) {
	var result task.Task
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := taskrepo.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := apply(tx, current, now); err != nil {
			return err
		}
		if err := replay.RebuildTask(ctx, tx, current.ID); err != nil {
			return wrapStorage("notes.rebuild", err)
		}
		result, err = taskrepo.Get(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	return result, nil
}

func (s *Service) writeNote(ctx context.Context, tx *sql.Tx, taskID, note, now string) error {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return nil
	}
	entry := task.Entry{TaskID: taskID, DeviceID: s.deviceID, OpType: task.OpUpdate, Field: task.FieldNotes, Value: trimmed}
	_, err := oplog.Write(ctx, tx, entry, now)
	return wrapStorage("notes.append", err)
}

func (s *Service) writeNotesClear(ctx context.Context, tx *sql.Tx, taskID, now string) error {
	entry := task.Entry{TaskID: taskID, DeviceID: s.deviceID, OpType: task.OpUpdate, Field: task.FieldNotesClear}
	_, err := oplog.Write(ctx, tx, entry, now)
	return wrapStorage("notes.clear", err)
}

// ValidateBlockedBy exposes the pure blocker validation (existence,
// self-reference, cycle) without performing a mutation.
func (s *Service) ValidateBlockedBy(ctx context.Context, taskID string, blockerIDs []string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.validateBlockedBy(ctx, tx, taskID, blockerIDs)
	})
}

func (s *Service) validateBlockedBy(ctx context.Context, tx *sql.Tx, taskID string, blockerIDs []string) error {
	if err := validate.BlockedByCount(len(blockerIDs)); err != nil {
		return tooLong(err)
	}
	for _, b := range blockerIDs {
		if b == taskID {
			return oruerrors.NewValidation(oruerrors.ValidationSelfBlock, "a task cannot block itself")
		}
		exists, err := taskrepo.Exists(ctx, tx, b)
		if err != nil {
			return wrapStorage("validate_blocked_by.exists", err)
		}
		if !exists {
			ve := oruerrors.NewValidation(oruerrors.ValidationNonexistent, "blocker "+b+" does not exist")
			ve.ID = b
			return ve
		}
		reaches, err := reachableFrom(ctx, tx, b, taskID)
		if err != nil {
			return err
		}
		if reaches {
			ve := oruerrors.NewValidation(oruerrors.ValidationCycle, "adding "+b+" as a blocker would create a cycle")
			ve.Via = b
			return ve
		}
	}
	return nil
}

// reachableFrom reports whether target is reachable from start by
// following blocked_by edges (a BFS over the current projection).
func reachableFrom(ctx context.Context, tx *sql.Tx, start, target string) (bool, error) {
	visited := map[string]struct{}{}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true, nil
		}
		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}

		t, err := taskrepo.Get(ctx, tx, cur)
		if err == oruerrors.ErrNotFound {
			continue
		}
		if err != nil {
			return false, wrapStorage("validate_blocked_by.bfs", err)
		}
		queue = append(queue, t.BlockedBy...)
	}
	return false, nil
}
