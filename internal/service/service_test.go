package service

import (
	"context"
	"testing"

	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/storage"
	"github.com/tchayen/oru/internal/task"
	"github.com/tchayen/oru/internal/taskrepo"
)

func newTestService(t *testing.T, next NextOccurrenceFunc) *Service {
	t.Helper()
	db, err := storage.Open(context.Background(), t.TempDir()+"/oru.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db, "dev1", next, nil)
	tick := 0
	clock := []string{
		"2026-01-01T00:00:00Z", "2026-01-01T00:01:00Z", "2026-01-01T00:02:00Z",
		"2026-01-01T00:03:00Z", "2026-01-01T00:04:00Z", "2026-01-01T00:05:00Z",
		"2026-01-01T00:06:00Z", "2026-01-01T00:07:00Z",
	}
	s.now = func() string {
		ts := clock[tick%len(clock)]
		tick++
		return ts
	}
	return s
}

func TestService_AddDefaults(t *testing.T) {
	s := newTestService(t, nil)
	got, err := s.Add(context.Background(), AddInput{Title: "Ship it"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got.Status != task.DefaultStatus || got.Priority != task.DefaultPriority {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.Title != "Ship it" {
		t.Fatalf("unexpected title: %q", got.Title)
	}
}

func TestService_AddIdConflict(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	if _, err := s.Add(ctx, AddInput{ID: "fixedid1234", Title: "First"}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := s.Add(ctx, AddInput{ID: "fixedid1234", Title: "Second"})
	if _, ok := err.(*oruerrors.IdConflictError); !ok {
		t.Fatalf("expected IdConflictError, got %T: %v", err, err)
	}
}

func TestService_UpdateWritesOnlyChangedFields(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, err := s.Add(ctx, AddInput{Title: "Original"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	newTitle := "Renamed"
	updated, err := s.Update(ctx, created.ID, UpdatePartial{Title: &newTitle})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("unexpected title: %q", updated.Title)
	}

	entries, err := s.Log(ctx, created.ID)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected exactly 2 oplog entries (create + title update), got %d", len(entries))
	}
}

func TestService_UpdateMetadataMergesShallowly(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, err := s.Add(ctx, AddInput{Title: "Task", Metadata: map[string]any{"a": "1", "b": "2"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, err := s.Update(ctx, created.ID, UpdatePartial{Metadata: map[string]any{"b": "20", "c": "3"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Metadata["a"] != "1" || updated.Metadata["b"] != "20" || updated.Metadata["c"] != "3" {
		t.Fatalf("unexpected merged metadata: %+v", updated.Metadata)
	}
}

func TestService_UpdateRejectsSelfBlock(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, err := s.Add(ctx, AddInput{Title: "Self"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	blockers := []string{created.ID}
	_, err = s.Update(ctx, created.ID, UpdatePartial{BlockedBy: &blockers})
	ve, ok := err.(*oruerrors.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != oruerrors.ValidationSelfBlock {
		t.Fatalf("expected self_block, got %v", ve.Kind)
	}
}

func TestService_UpdateRejectsCycle(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	a, _ := s.Add(ctx, AddInput{Title: "A"})
	b, _ := s.Add(ctx, AddInput{Title: "B"})

	bBlockers := []string{a.ID}
	if _, err := s.Update(ctx, b.ID, UpdatePartial{BlockedBy: &bBlockers}); err != nil {
		t.Fatalf("update b: %v", err)
	}

	aBlockers := []string{b.ID}
	_, err := s.Update(ctx, a.ID, UpdatePartial{BlockedBy: &aBlockers})
	ve, ok := err.(*oruerrors.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != oruerrors.ValidationCycle {
		t.Fatalf("expected cycle, got %v", ve.Kind)
	}
}

func TestService_UpdateRejectsNonexistentBlocker(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, _ := s.Add(ctx, AddInput{Title: "Task"})

	blockers := []string{"doesnotexist"}
	_, err := s.Update(ctx, created.ID, UpdatePartial{BlockedBy: &blockers})
	ve, ok := err.(*oruerrors.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != oruerrors.ValidationNonexistent {
		t.Fatalf("expected nonexistent, got %v", ve.Kind)
	}
}

func TestService_AddNoteDedupAndEmptyNoOp(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, _ := s.Add(ctx, AddInput{Title: "Task"})

	if _, err := s.AddNote(ctx, created.ID, "  hello  "); err != nil {
		t.Fatalf("add note: %v", err)
	}
	got, err := s.AddNote(ctx, created.ID, "   ")
	if err != nil {
		t.Fatalf("add empty note: %v", err)
	}
	if len(got.Notes) != 1 || got.Notes[0] != "hello" {
		t.Fatalf("unexpected notes: %v", got.Notes)
	}
}

func TestService_ReplaceNotesWholesale(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, _ := s.Add(ctx, AddInput{Title: "Task", Notes: []string{"old"}})

	got, err := s.ReplaceNotes(ctx, created.ID, []string{"new1", "new1", "new2"})
	if err != nil {
		t.Fatalf("replace notes: %v", err)
	}
	if len(got.Notes) != 2 || got.Notes[0] != "new1" || got.Notes[1] != "new2" {
		t.Fatalf("unexpected notes after replace: %v", got.Notes)
	}
}

func TestService_DeleteMissingReturnsFalse(t *testing.T) {
	s := newTestService(t, nil)
	found, err := s.Delete(context.Background(), "nosuchtask1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if found {
		t.Fatalf("expected false for missing task")
	}
}

func TestService_DeleteExisting(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	created, _ := s.Add(ctx, AddInput{Title: "Task"})

	found, err := s.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !found {
		t.Fatalf("expected true for existing task")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsDeleted() {
		t.Fatalf("expected deleted task")
	}
}

func TestService_MaybeSpawnOnlyOnce(t *testing.T) {
	next := func(rule, anchor string) (string, error) { return "2026-02-16T09:00:00", nil }
	s := newTestService(t, next)
	ctx := context.Background()

	created, err := s.Add(ctx, AddInput{
		Title:      "Recurring",
		Recurrence: "FREQ=DAILY",
		DueAt:      "2026-02-15T09:00:00",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	done := task.StatusDone
	if _, err := s.Update(ctx, created.ID, UpdatePartial{Status: &done}); err != nil {
		t.Fatalf("update to done: %v", err)
	}

	list, err := s.List(ctx, taskrepo.Filters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected parent + 1 spawned child, got %d", len(list))
	}

	// Replaying the same done transition (e.g. via a second update call)
	// must not spawn a second child.
	if _, err := s.Update(ctx, created.ID, UpdatePartial{Status: &done}); err != nil {
		t.Fatalf("second update to done: %v", err)
	}
	list, err = s.List(ctx, taskrepo.Filters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected spawn to remain idempotent, got %d tasks", len(list))
	}
}

func TestService_GetContext_Buckets(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	blocker, _ := s.Add(ctx, AddInput{Title: "Blocker"})
	blockers := []string{blocker.ID}
	blocked, _ := s.Add(ctx, AddInput{Title: "Blocked"})
	if _, err := s.Update(ctx, blocked.ID, UpdatePartial{BlockedBy: &blockers}); err != nil {
		t.Fatalf("update blocked: %v", err)
	}

	if _, err := s.Add(ctx, AddInput{Title: "Free"}); err != nil {
		t.Fatalf("add free: %v", err)
	}

	got, err := s.GetContext(ctx, ContextOptions{})
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if got.Summary.Blocked != 1 {
		t.Fatalf("expected 1 blocked task, got %d (%+v)", got.Summary.Blocked, got.Sections.Blocked)
	}
	if got.Summary.Actionable < 1 {
		t.Fatalf("expected at least 1 actionable task, got %d", got.Summary.Actionable)
	}
}
