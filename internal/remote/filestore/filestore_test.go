package filestore

import (
	"context"
	"testing"
	"time"

	"github.com/tchayen/oru/internal/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir()+"/remote.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPush_DeduplicatesByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := task.Entry{ID: "op00000001", TaskID: "t1", DeviceID: "devA", OpType: task.OpCreate, Value: "{}", Timestamp: "2026-01-01T00:00:00Z"}

	if err := s.Push(ctx, []task.Entry{entry}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := s.Push(ctx, []task.Entry{entry}); err != nil {
		t.Fatalf("second push: %v", err)
	}

	entries, _, err := s.Pull(ctx, "")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after duplicate push, got %d", len(entries))
	}
}

func TestPull_CursorAdvancesAndDrains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e := task.Entry{
			ID: string(rune('a' + i)) + "0000000001", TaskID: "t1", DeviceID: "devA",
			OpType: task.OpCreate, Value: "{}", Timestamp: "2026-01-01T00:00:00Z",
		}
		if err := s.Push(ctx, []task.Entry{e}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	entries, cursor, err := s.Pull(ctx, "")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	more, nextCursor, err := s.Pull(ctx, cursor)
	if err != nil {
		t.Fatalf("second pull: %v", err)
	}
	if len(more) != 0 {
		t.Fatalf("expected drained pull to return 0 entries, got %d", len(more))
	}
	if nextCursor != cursor {
		t.Fatalf("expected cursor unchanged once drained, got %q vs %q", nextCursor, cursor)
	}
}

func TestPushPull_PreservesFieldsByteExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := task.Entry{
		ID: "op00000002", TaskID: "t2", DeviceID: "devB", OpType: task.OpUpdate,
		Field: "title", Value: "Renamed Task", Timestamp: "2026-01-02T03:04:05Z",
	}
	if err := s.Push(ctx, []task.Entry{entry}); err != nil {
		t.Fatalf("push: %v", err)
	}

	entries, _, err := s.Pull(ctx, "")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID != entry.ID || got.TaskID != entry.TaskID || got.DeviceID != entry.DeviceID ||
		got.OpType != entry.OpType || got.Field != entry.Field || got.Value != entry.Value || got.Timestamp != entry.Timestamp {
		t.Fatalf("fields not preserved byte-exactly: got %+v, want %+v", got, entry)
	}
}

func TestWatch_FiresOnPush(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fired := make(chan struct{}, 1)
	go s.Watch(ctx, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	// give the watcher a moment to register before the write happens.
	time.Sleep(50 * time.Millisecond)
	entry := task.Entry{ID: "op00000099", TaskID: "t9", DeviceID: "devA", OpType: task.OpCreate, Value: "{}", Timestamp: "2026-01-01T00:00:00Z"}
	if err := s.Push(context.Background(), []task.Entry{entry}); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatalf("watch did not fire within timeout")
	}
}
