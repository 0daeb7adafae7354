// Package service is the single write path for tasks: every mutation
// combines a projection write with one or more oplog entries inside one
// storage transaction, then rebuilds the projection from the oplog so
// state after any call is, by construction, the same pure function of
// the oplog the replay engine computes from scratch.
//
// Grounded on the teacher's higher-level mutation surface that combines
// repository writes with event appends under one transaction
// (events.go, comments.go).
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/tchayen/oru/internal/fieldcodec"
	"github.com/tchayen/oru/internal/idgen"
	"github.com/tchayen/oru/internal/oplog"
	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/replay"
	"github.com/tchayen/oru/internal/storage"
	"github.com/tchayen/oru/internal/task"
	"github.com/tchayen/oru/internal/taskrepo"
	"github.com/tchayen/oru/internal/validate"
)

// NextOccurrenceFunc computes the next due date for a recurrence rule
// given an anchor timestamp. The core treats rule parsing as opaque
// (spec.md section 4.G); callers inject a real parser.
type NextOccurrenceFunc func(rule, anchor string) (string, error)

// Service is the only entry point through which callers mutate task
// state.
type Service struct {
	db       *storage.DB
	deviceID string
	next     NextOccurrenceFunc
	log      *slog.Logger
	now      func() string // overridable clock, for deterministic tests
}

// New builds a Service. next may be nil if the caller never uses
// recurring tasks; maybeSpawn then becomes a no-op.
func New(db *storage.DB, deviceID string, next NextOccurrenceFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, deviceID: deviceID, next: next, log: logger, now: task.NowUTC}
}

// AddInput is the input to Add. ID is optional; when empty, a fresh id is
// generated.
type AddInput struct {
	ID         string
	Title      string
	Status     task.Status
	Priority   task.Priority
	Owner      string
	DueAt      string
	Recurrence string
	BlockedBy  []string
	Labels     []string
	Notes      []string
	Metadata   map[string]any
}

// UpdatePartial carries only the fields a caller wants to change.
// Metadata is merged shallowly with the existing map when non-nil.
type UpdatePartial struct {
	Title      *string
	Status     *task.Status
	Priority   *task.Priority
	Owner      *string
	DueAt      *string
	Recurrence *string
	BlockedBy  *[]string
	Labels     *[]string
	Metadata   map[string]any
}

// Add creates a task, writing one create oplog entry whose value is the
// initial field set. Fails with IdConflictError if ID is supplied and
// already exists.
func (s *Service) Add(ctx context.Context, in AddInput) (task.Task, error) {
	id := in.ID
	if id == "" {
		id = idgen.NewID()
	}

	title := validate.SanitizeTitle(in.Title)
	if err := validate.Title(title); err != nil {
		return task.Task{}, tooLong(err)
	}
	if err := validateDueAt(in.DueAt); err != nil {
		return task.Task{}, err
	}
	if err := validateLabels(in.Labels); err != nil {
		return task.Task{}, err
	}
	if err := validate.BlockedByCount(len(in.BlockedBy)); err != nil {
		return task.Task{}, tooLong(err)
	}
	if err := validateNotes(dedupedTrimmedNotes(in.Notes)); err != nil {
		return task.Task{}, err
	}

	status := in.Status
	if status == "" {
		status = task.DefaultStatus
	}
	priority := in.Priority
	if priority == "" {
		priority = task.DefaultPriority
	}
	owner := strings.TrimSpace(in.Owner)
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if err := validateMetadata(metadata); err != nil {
		return task.Task{}, err
	}

	var result task.Task
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		exists, err := taskrepo.Exists(ctx, tx, id)
		if err != nil {
			return &oruerrors.StorageError{Op: "add.exists", Err: err}
		}
		if exists {
			return &oruerrors.IdConflictError{ID: id}
		}

		now := s.now()
		payload := fieldcodec.CreatePayload{
			Title:      title,
			Status:     string(status),
			Priority:   string(priority),
			Owner:      owner,
			DueAt:      in.DueAt,
			Recurrence: in.Recurrence,
			BlockedBy:  toAnySlice(in.BlockedBy),
			Labels:     toAnySlice(in.Labels),
			Notes:      toAnySlice(in.Notes),
			Metadata:   metadata,
		}
		entry := task.Entry{
			TaskID:   id,
			DeviceID: s.deviceID,
			OpType:   task.OpCreate,
			Value:    fieldcodec.EncodeCreate(payload),
		}
		if _, err := oplog.Write(ctx, tx, entry, now); err != nil {
			return &oruerrors.StorageError{Op: "add.write", Err: err}
		}
		if err := replay.RebuildTask(ctx, tx, id); err != nil {
			return &oruerrors.StorageError{Op: "add.rebuild", Err: err}
		}
		result, err = taskrepo.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	return result, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func validateDueAt(dueAt string) error {
	if err := validate.Date(dueAt); err != nil {
		return oruerrors.NewValidation(oruerrors.ValidationBadDate, err.Error())
	}
	return nil
}

// tooLong wraps a validate bounded-size error as a Validation error, the
// way spec.md section 7 routes every size-bound violation.
func tooLong(err error) error {
	return oruerrors.NewValidation(oruerrors.ValidationTooLong, err.Error())
}

// validateLabels enforces spec.md section 3's label count and per-label
// length bounds.
func validateLabels(labels []string) error {
	if err := validate.LabelCount(len(labels)); err != nil {
		return tooLong(err)
	}
	for _, l := range labels {
		if err := validate.Label(l); err != nil {
			return tooLong(err)
		}
	}
	return nil
}

// validateMetadata enforces spec.md section 3's metadata key count,
// key length, and string-value length bounds.
func validateMetadata(m map[string]any) error {
	if err := validate.MetadataKeyCount(len(m)); err != nil {
		return tooLong(err)
	}
	for k, v := range m {
		if err := validate.MetadataKey(k); err != nil {
			return tooLong(err)
		}
		if s, ok := v.(string); ok {
			if err := validate.MetadataValue(s); err != nil {
				return tooLong(err)
			}
		}
	}
	return nil
}

// validateNotes enforces spec.md section 3's notes count and per-note
// length bounds against the set of notes that will actually be written.
func validateNotes(notes []string) error {
	if err := validate.NoteCount(len(notes)); err != nil {
		return tooLong(err)
	}
	for _, n := range notes {
		if err := validate.Note(n); err != nil {
			return tooLong(err)
		}
	}
	return nil
}

// dedupedTrimmedNotes trims and dedupes notes, dropping empties, matching
// the replay engine's own notes-on-create normalization (spec.md section
// 4.E.c) so validation counts the same set replay will keep.
func dedupedTrimmedNotes(notes []string) []string {
	seen := make(map[string]struct{}, len(notes))
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// Get resolves id (exact or unique prefix) and returns the task.
func (s *Service) Get(ctx context.Context, id string) (task.Task, error) {
	return taskrepo.Get(ctx, s.db.SQL(), id)
}

// List forwards to the repository.
func (s *Service) List(ctx context.Context, f taskrepo.Filters) ([]task.Task, error) {
	return taskrepo.List(ctx, s.db.SQL(), f)
}

// ListLabels forwards to the repository.
func (s *Service) ListLabels(ctx context.Context) ([]string, error) {
	return taskrepo.ListLabels(ctx, s.db.SQL())
}

// Log returns all oplog entries for id ordered by (timestamp ASC, rowid
// ASC), the human-facing history view (spec.md section 4.G).
func (s *Service) Log(ctx context.Context, id string) ([]task.Entry, error) {
	t, err := taskrepo.Get(ctx, s.db.SQL(), id)
	if err != nil {
		return nil, err
	}
	return oplog.ForTaskByRowID(ctx, s.db.SQL(), t.ID)
}

// Delete soft-deletes id, returning false if it did not resolve.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := taskrepo.Get(ctx, tx, id)
		if err == oruerrors.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		now := s.now()
		entry := task.Entry{
			TaskID:   t.ID,
			DeviceID: s.deviceID,
			OpType:   task.OpDelete,
		}
		if _, err := oplog.Write(ctx, tx, entry, now); err != nil {
			return &oruerrors.StorageError{Op: "delete.write", Err: err}
		}
		return replay.RebuildTask(ctx, tx, t.ID)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &oruerrors.StorageError{Op: op, Err: err}
}
