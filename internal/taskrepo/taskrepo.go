// Package taskrepo reads the materialized tasks table the replay engine
// writes: id/prefix lookup, filtered/sorted listing, label enumeration,
// and existence checks, always run either inside a service transaction
// or directly against the pool. Writing the table is replay's job alone
// (the projection is a pure function of the oplog); this package has no
// insert/update/delete path of its own.
//
// Grounded on the teacher's internal/storage/sqlite/issues.go
// prefix-resolution precedent in ids.go (generalized here from
// hierarchical "parent.N" ids to a flat prefix match over 11-char ids),
// plus the free-form SQL fragment escape hatch pattern from
// internal/storage/sqlite/events_helpers.go, used here by list's label
// membership and title substring filters.
package taskrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tchayen/oru/internal/fieldcodec"
	"github.com/tchayen/oru/internal/oruerrors"
	"github.com/tchayen/oru/internal/task"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so read operations can
// run either inside a service transaction or directly against the pool.
type querier interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// SortField is the closed set of list() sort keys (spec.md section 4.F).
type SortField string

const (
	SortPriority SortField = "priority"
	SortDue      SortField = "due"
	SortTitle    SortField = "title"
	SortCreated  SortField = "created"
)

// Filters narrows list() results. Zero-value fields are unconstrained.
type Filters struct {
	Statuses    []task.Status
	Priorities  []task.Priority
	Owner       string
	Label       string
	TitleLike   string
	Actionable  bool
	RawWhere    string // trusted-caller-only free-form SQL WHERE fragment
	RawWhereArg []any
	Sort        SortField
	Limit       int
	Offset      int
}

// Get attempts an exact id match first, then a prefix match. A unique
// prefix match returns that task; ≥2 matches return AmbiguousPrefixError;
// no match returns oruerrors.ErrNotFound.
func Get(ctx context.Context, q querier, id string) (task.Task, error) {
	t, err := getExact(ctx, q, id)
	if err == nil {
		return t, nil
	}
	if err != oruerrors.ErrNotFound {
		return task.Task{}, err
	}

	rows, err := q.QueryContext(ctx, selectCols+` FROM tasks WHERE id LIKE ? ORDER BY id`, id+"%")
	if err != nil {
		return task.Task{}, fmt.Errorf("taskrepo: prefix lookup %s: %w", id, err)
	}
	defer rows.Close()

	var matches []task.Task
	for rows.Next() {
		m, err := scanRow(rows)
		if err != nil {
			return task.Task{}, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return task.Task{}, fmt.Errorf("taskrepo: prefix lookup %s: %w", id, err)
	}

	switch len(matches) {
	case 0:
		return task.Task{}, oruerrors.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return task.Task{}, &oruerrors.AmbiguousPrefixError{Prefix: id, Candidates: ids}
	}
}

const selectCols = `SELECT id, title, status, priority, owner, due_at, recurrence, blocked_by, labels, notes, metadata, created_at, updated_at, deleted_at`

// getExact looks up a task by its full id.
func getExact(ctx context.Context, q querier, id string) (task.Task, error) {
	row := q.QueryRowContext(ctx, selectCols+` FROM tasks WHERE id = ?`, id)
	var t task.Task
	var status, priority, blockedBy, labels, notes, metadata string
	err := row.Scan(&t.ID, &t.Title, &status, &priority, &t.Owner, &t.DueAt, &t.Recurrence,
		&blockedBy, &labels, &notes, &metadata, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err == sql.ErrNoRows {
		return task.Task{}, oruerrors.ErrNotFound
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("taskrepo: get %s: %w", id, err)
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.BlockedBy, _ = fieldcodec.DecodeStringArray(blockedBy)
	t.Labels, _ = fieldcodec.DecodeStringArray(labels)
	t.Notes, _ = fieldcodec.DecodeStringArray(notes)
	t.Metadata, _ = fieldcodec.DecodeMetadata(metadata)
	return t, nil
}

func scanRow(rows *sql.Rows) (task.Task, error) {
	var t task.Task
	var status, priority, blockedBy, labels, notes, metadata string
	err := rows.Scan(&t.ID, &t.Title, &status, &priority, &t.Owner, &t.DueAt, &t.Recurrence,
		&blockedBy, &labels, &notes, &metadata, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return task.Task{}, fmt.Errorf("taskrepo: scan row: %w", err)
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.BlockedBy, _ = fieldcodec.DecodeStringArray(blockedBy)
	t.Labels, _ = fieldcodec.DecodeStringArray(labels)
	t.Notes, _ = fieldcodec.DecodeStringArray(notes)
	t.Metadata, _ = fieldcodec.DecodeMetadata(metadata)
	return t, nil
}

// List returns projection rows matching f, sorted and paginated per
// spec.md section 4.F.
func List(ctx context.Context, q querier, f Filters) ([]task.Task, error) {
	var where []string
	var args []any

	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	if len(f.Priorities) > 0 {
		ph := make([]string, len(f.Priorities))
		for i, p := range f.Priorities {
			ph[i] = "?"
			args = append(args, string(p))
		}
		where = append(where, "priority IN ("+strings.Join(ph, ",")+")")
	}
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Label != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(labels) WHERE json_each.value = ?)")
		args = append(args, f.Label)
	}
	if f.TitleLike != "" {
		where = append(where, "title LIKE ? ESCAPE '\\' COLLATE NOCASE")
		args = append(args, "%"+escapeLike(f.TitleLike)+"%")
	}
	if f.Actionable {
		where = append(where, `status != 'done' AND deleted_at = '' AND NOT EXISTS (
			SELECT 1 FROM json_each(tasks.blocked_by) b
			JOIN tasks bt ON bt.id = b.value
			WHERE bt.status != 'done' AND bt.deleted_at = ''
		)`)
	} else {
		where = append(where, "deleted_at = ''")
	}
	if f.RawWhere != "" {
		where = append(where, f.RawWhere)
		args = append(args, f.RawWhereArg...)
	}

	query := selectCols + " FROM tasks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(f.Sort)

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskrepo: list: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// orderBy renders the ORDER BY clause for each sort field per spec.md
// section 4.F. priority is ranked with a CASE expression since SQLite has
// no native enum ordering.
func orderBy(s SortField) string {
	switch s {
	case SortPriority:
		return `CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END, created_at ASC`
	case SortDue:
		return `(due_at = '') ASC, due_at ASC, created_at ASC`
	case SortTitle:
		return `title COLLATE NOCASE ASC, created_at ASC`
	default:
		return `created_at ASC`
	}
}

// escapeLike escapes SQL LIKE metacharacters so TitleLike is matched
// literally rather than as a pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// ListLabels returns every distinct label across non-deleted tasks,
// sorted.
func ListLabels(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT value FROM tasks, json_each(tasks.labels)
		WHERE tasks.deleted_at = ''
		ORDER BY value COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("taskrepo: list labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("taskrepo: scan label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Exists reports whether id names a current (not necessarily non-deleted)
// projection row, used by blocker validation.
func Exists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("taskrepo: exists %s: %w", id, err)
	}
	return true, nil
}
