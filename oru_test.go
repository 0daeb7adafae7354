package oru

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tchayen/oru/internal/remote/filestore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "oru.db"), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AssignsStableDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oru.db")

	s1, err := Open(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id1 := s1.DeviceID()
	s1.Close()

	s2, err := Open(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if s2.DeviceID() != id1 {
		t.Fatalf("device id changed across reopen: %q vs %q", id1, s2.DeviceID())
	}
}

func TestStore_AddGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	added, err := s.Add(ctx, AddInput{Title: "Write quarterly report"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.Status != StatusTodo || added.Priority != PriorityMedium {
		t.Fatalf("unexpected defaults: %+v", added)
	}

	owner := "alice"
	updated, err := s.Update(ctx, added.ID, UpdatePartial{Owner: &owner})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Owner != "alice" {
		t.Fatalf("owner not applied: %+v", updated)
	}

	got, err := s.Get(ctx, added.ID[:4])
	if err != nil {
		t.Fatalf("get by prefix: %v", err)
	}
	if got.ID != added.ID {
		t.Fatalf("prefix resolved to wrong task: %+v", got)
	}

	ok, err := s.Delete(ctx, added.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	// Get resolves by id regardless of tombstone state (only List filters
	// deleted tasks out); the task is still reachable, just marked deleted.
	tombstoned, err := s.Get(ctx, added.ID)
	if err != nil {
		t.Fatalf("expected deleted task still reachable by Get, got err: %v", err)
	}
	if !tombstoned.IsDeleted() {
		t.Fatalf("expected deleted task to carry a tombstone: %+v", tombstoned)
	}

	tasks, err := s.List(ctx, Filters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, lt := range tasks {
		if lt.ID == added.ID {
			t.Fatalf("expected deleted task excluded from default list, got %+v", lt)
		}
	}
}

func TestStore_SyncEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t)

	remotePath := filepath.Join(t.TempDir(), "remote.db")
	remoteA, err := filestore.Open(ctx, remotePath)
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	defer remoteA.Close()

	if _, err := a.Add(ctx, AddInput{Title: "Sync me"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	engineA := a.NewSyncEngine(remoteA)
	if _, _, err := engineA.Sync(ctx); err != nil {
		t.Fatalf("sync a: %v", err)
	}

	b := newTestStore(t)
	remoteB, err := filestore.Open(ctx, remotePath)
	if err != nil {
		t.Fatalf("open remote for b: %v", err)
	}
	defer remoteB.Close()

	engineB := b.NewSyncEngine(remoteB)
	if _, _, err := engineB.Sync(ctx); err != nil {
		t.Fatalf("sync b: %v", err)
	}

	tasks, err := b.List(ctx, Filters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Sync me" {
		t.Fatalf("expected synced task on b, got %+v", tasks)
	}
}
