// Package oru is the library facade over the task manager core: a
// single entry point (Open) that wires storage, the task service, and
// sync together the way the teacher's root package wraps its internal
// packages for embedders, so the core is usable without reaching into
// internal/ directly.
package oru

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/oruslog"
	"github.com/tchayen/oru/internal/service"
	"github.com/tchayen/oru/internal/storage"
	"github.com/tchayen/oru/internal/sync"
	"github.com/tchayen/oru/internal/task"
	"github.com/tchayen/oru/internal/taskrepo"
)

// Re-export the types and constants callers need without an internal/
// import: the task shape, filters/sort keys, service inputs, and the
// closed error kinds live here under their public names.
type (
	Task           = task.Task
	Status         = task.Status
	Priority       = task.Priority
	Entry          = task.Entry
	Filters        = taskrepo.Filters
	SortField      = taskrepo.SortField
	AddInput       = service.AddInput
	UpdatePartial  = service.UpdatePartial
	ContextOptions = service.ContextOptions
	Context        = service.Context
	RemoteBackend  = sync.RemoteBackend
	NextOccurrence = service.NextOccurrenceFunc
)

type (
	AmbiguousPrefixError = oruerrors.AmbiguousPrefixError
	ValidationError      = oruerrors.ValidationError
	ValidationKind       = oruerrors.ValidationKind
	IdConflictError      = oruerrors.IdConflictError
	StorageError         = oruerrors.StorageError
	RemoteError          = oruerrors.RemoteError
)

var (
	ErrNotFound         = oruerrors.ErrNotFound
	ErrSyncLoopExceeded = oruerrors.ErrSyncLoopExceeded
)

const (
	StatusTodo       = task.StatusTodo
	StatusInProgress = task.StatusInProgress
	StatusInReview   = task.StatusInReview
	StatusDone       = task.StatusDone

	PriorityLow    = task.PriorityLow
	PriorityMedium = task.PriorityMedium
	PriorityHigh   = task.PriorityHigh
	PriorityUrgent = task.PriorityUrgent

	SortByPriority = taskrepo.SortPriority
	SortByDue      = taskrepo.SortDue
	SortByTitle    = taskrepo.SortTitle
	SortByCreated  = taskrepo.SortCreated
)

// Store is an opened database together with the service that mutates it.
// It is the library's main handle: callers get one from Open and drive
// everything else through its methods.
type Store struct {
	db       *storage.DB
	svc      *service.Service
	deviceID string
	log      *slog.Logger
}

// Options configures Open. Logger defaults to a no-op sink; Next
// defaults to nil, which makes recurrence spawning inert.
type Options struct {
	Logger *slog.Logger
	Next   NextOccurrence
}

// Open opens (creating if necessary) the database at path, runs
// migrations, resolves this installation's device id, and returns a
// ready-to-use Store.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	db, err := storage.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("oru: open %s: %w", path, err)
	}

	deviceID, err := storage.DeviceID(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("oru: resolve device id: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = oruslog.Nop()
	}

	return &Store{
		db:       db,
		svc:      service.New(db, deviceID, opts.Next, logger),
		deviceID: deviceID,
		log:      logger,
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DeviceID returns this installation's stable device id.
func (s *Store) DeviceID() string { return s.deviceID }

// Add creates a task.
func (s *Store) Add(ctx context.Context, in AddInput) (Task, error) { return s.svc.Add(ctx, in) }

// Get resolves id (exact or unique prefix) and returns the task.
func (s *Store) Get(ctx context.Context, id string) (Task, error) { return s.svc.Get(ctx, id) }

// List returns projection rows matching f.
func (s *Store) List(ctx context.Context, f Filters) ([]Task, error) { return s.svc.List(ctx, f) }

// Update applies p to id.
func (s *Store) Update(ctx context.Context, id string, p UpdatePartial) (Task, error) {
	return s.svc.Update(ctx, id, p)
}

// AddNote appends note to id's notes.
func (s *Store) AddNote(ctx context.Context, id, note string) (Task, error) {
	return s.svc.AddNote(ctx, id, note)
}

// UpdateWithNote applies p and appends note in one transaction.
func (s *Store) UpdateWithNote(ctx context.Context, id string, p UpdatePartial, note string) (Task, error) {
	return s.svc.UpdateWithNote(ctx, id, p, note)
}

// ClearNotes empties id's notes.
func (s *Store) ClearNotes(ctx context.Context, id string) (Task, error) {
	return s.svc.ClearNotes(ctx, id)
}

// ClearNotesAndUpdate clears notes, applies p, then optionally appends note.
func (s *Store) ClearNotesAndUpdate(ctx context.Context, id string, p UpdatePartial, note string) (Task, error) {
	return s.svc.ClearNotesAndUpdate(ctx, id, p, note)
}

// ReplaceNotes replaces id's notes wholesale.
func (s *Store) ReplaceNotes(ctx context.Context, id string, notes []string) (Task, error) {
	return s.svc.ReplaceNotes(ctx, id, notes)
}

// Delete soft-deletes id, reporting whether it was found.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) { return s.svc.Delete(ctx, id) }

// Log returns id's full oplog history in display order.
func (s *Store) Log(ctx context.Context, id string) ([]Entry, error) { return s.svc.Log(ctx, id) }

// ListLabels returns every distinct label across non-deleted tasks.
func (s *Store) ListLabels(ctx context.Context) ([]string, error) { return s.svc.ListLabels(ctx) }

// ValidateBlockedBy pure-validates a prospective blocker set for taskID.
func (s *Store) ValidateBlockedBy(ctx context.Context, taskID string, blockerIDs []string) error {
	return s.svc.ValidateBlockedBy(ctx, taskID, blockerIDs)
}

// GetContext partitions non-deleted tasks into the sections described in
// spec.md section 4.G.
func (s *Store) GetContext(ctx context.Context, opts ContextOptions) (Context, error) {
	return s.svc.GetContext(ctx, opts)
}

// NewSyncEngine builds a sync engine over this store's database talking
// to remote, using this store's device id.
func (s *Store) NewSyncEngine(remote RemoteBackend) *sync.Engine {
	return sync.New(s.db, remote, s.deviceID)
}
