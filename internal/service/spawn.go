package service

import (
	"context"
	"database/sql"

	"github.com/tchayen/oru/internal/fieldcodec"
	"github.com/tchayen/oru/internal/idgen"
	"github.com/tchayen/oru/internal/oplog"
	"github.com/tchayen/oru/internal/replay"
	"github.com/tchayen/oru/internal/task"
	"github.com/tchayen/oru/internal/taskrepo"
)

// maybeSpawn implements spec.md section 4.G's recurrence rule: a task
// transitioning to done with a recurrence set spawns exactly one child,
// whose id is content-addressed from the parent id so the same
// completion replayed on multiple devices never spawns duplicates.
func (s *Service) maybeSpawn(ctx context.Context, tx *sql.Tx, t task.Task) error {
	if t.Status != task.StatusDone || t.Recurrence == "" || s.next == nil {
		return nil
	}

	childID := idgen.SpawnID(t.ID)
	exists, err := taskrepo.Exists(ctx, tx, childID)
	if err != nil {
		return wrapStorage("maybe_spawn.exists", err)
	}
	if exists {
		return nil
	}

	rule := t.Recurrence
	anchor := t.DueAt
	if after, ok := stripAfterPrefix(rule); ok {
		rule = after
		anchor = s.now()
	}
	if anchor == "" {
		anchor = s.now()
	}

	dueAt, err := s.next(rule, anchor)
	if err != nil {
		return wrapStorage("maybe_spawn.next_occurrence", err)
	}

	now := s.now()
	payload := fieldcodec.CreatePayload{
		Title:      t.Title,
		Status:     string(task.DefaultStatus),
		Priority:   string(t.Priority),
		Owner:      t.Owner,
		DueAt:      dueAt,
		Recurrence: t.Recurrence,
		Labels:     toAnySlice(t.Labels),
		Metadata:   cloneMetadata(t.Metadata),
	}
	entry := task.Entry{
		TaskID:   childID,
		DeviceID: s.deviceID,
		OpType:   task.OpCreate,
		Value:    fieldcodec.EncodeCreate(payload),
	}
	if _, err := oplog.Write(ctx, tx, entry, now); err != nil {
		return wrapStorage("maybe_spawn.write", err)
	}
	return replay.RebuildTask(ctx, tx, childID)
}

// stripAfterPrefix reports whether rule is completion-anchored
// ("after:FREQ=...") and, if so, returns the rule with the prefix
// removed.
func stripAfterPrefix(rule string) (string, bool) {
	const prefix = "after:"
	if len(rule) > len(prefix) && rule[:len(prefix)] == prefix {
		return rule[len(prefix):], true
	}
	return rule, false
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
