package service

import (
	"context"
	"time"

	"github.com/tchayen/oru/internal/task"
	"github.com/tchayen/oru/internal/taskrepo"
)

// ContextOptions narrows GetContext to a particular owner and/or label.
type ContextOptions struct {
	Owner string
	Label string
}

// Sections buckets non-done tasks by the precedence rule in spec.md
// section 4.G; each non-done task appears in exactly one of the first five
// buckets, the first that matches. RecentlyCompleted separately holds done
// tasks updated within the last 24 hours.
type Sections struct {
	Overdue           []task.Task
	DueSoon           []task.Task
	InProgress        []task.Task
	Blocked           []task.Task
	Actionable        []task.Task
	RecentlyCompleted []task.Task
}

// Summary is the section-count rollup returned alongside Sections.
type Summary struct {
	Overdue           int
	DueSoon           int
	InProgress        int
	Blocked           int
	Actionable        int
	RecentlyCompleted int
}

// Context is GetContext's result: the bucketed sections, a summary, and
// a lookup from blocker id to title for display.
type Context struct {
	Sections      Sections
	Summary       Summary
	BlockerTitles map[string]string
}

// dueSoonWindow is how far into the future a due date still counts as
// "due soon" rather than merely upcoming (spec.md section 4.G: 48h).
const dueSoonWindow = 48 * time.Hour

// GetContext partitions non-deleted tasks into the sections described in
// spec.md section 4.G. due_at comparisons use wall-clock local time
// (due_at carries no timezone and is defined as local-time, spec.md
// section 3); oplog timestamps remain UTC throughout and are untouched
// by this method.
func (s *Service) GetContext(ctx context.Context, opts ContextOptions) (Context, error) {
	tasks, err := taskrepo.List(ctx, s.db.SQL(), taskrepo.Filters{Owner: opts.Owner, Label: opts.Label})
	if err != nil {
		return Context{}, err
	}

	now := time.Now()
	var sections Sections
	blockerTitles := map[string]string{}

	byID := make(map[string]task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, t := range tasks {
		if t.Status == task.StatusDone {
			if isRecentlyCompleted(t, now) {
				sections.RecentlyCompleted = append(sections.RecentlyCompleted, t)
			}
			continue
		}

		switch {
		case isOverdue(t, now):
			sections.Overdue = append(sections.Overdue, t)
		case isDueSoon(t, now):
			sections.DueSoon = append(sections.DueSoon, t)
		case t.Status == task.StatusInProgress || t.Status == task.StatusInReview:
			sections.InProgress = append(sections.InProgress, t)
		case hasActiveBlocker(t, byID):
			sections.Blocked = append(sections.Blocked, t)
			for _, b := range t.BlockedBy {
				if bt, ok := byID[b]; ok {
					blockerTitles[b] = bt.Title
				}
			}
		case t.Status == task.StatusTodo:
			sections.Actionable = append(sections.Actionable, t)
		}
	}

	summary := Summary{
		Overdue:           len(sections.Overdue),
		DueSoon:           len(sections.DueSoon),
		InProgress:        len(sections.InProgress),
		Blocked:           len(sections.Blocked),
		Actionable:        len(sections.Actionable),
		RecentlyCompleted: len(sections.RecentlyCompleted),
	}

	return Context{Sections: sections, Summary: summary, BlockerTitles: blockerTitles}, nil
}

var localDueAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseDueAt(dueAt string, ref time.Time) (time.Time, bool) {
	if dueAt == "" {
		return time.Time{}, false
	}
	for _, layout := range localDueAtLayouts {
		if t, err := time.ParseInLocation(layout, dueAt, ref.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isOverdue(t task.Task, now time.Time) bool {
	due, ok := parseDueAt(t.DueAt, now)
	return ok && due.Before(now)
}

func isDueSoon(t task.Task, now time.Time) bool {
	due, ok := parseDueAt(t.DueAt, now)
	if !ok || due.Before(now) {
		return false
	}
	return due.Before(now.Add(dueSoonWindow))
}

func hasActiveBlocker(t task.Task, byID map[string]task.Task) bool {
	for _, b := range t.BlockedBy {
		blocker, ok := byID[b]
		if !ok {
			continue
		}
		if blocker.Status != task.StatusDone && !blocker.IsDeleted() {
			return true
		}
	}
	return false
}

func isRecentlyCompleted(t task.Task, now time.Time) bool {
	updated, err := time.Parse(time.RFC3339Nano, t.UpdatedAt)
	if err != nil {
		return false
	}
	return now.Sub(updated) <= 24*time.Hour && now.Sub(updated) >= 0
}
