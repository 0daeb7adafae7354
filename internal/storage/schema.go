package storage

// schema is the initial DDL for the three tables spec.md section 4.C
// names: tasks (the materialized projection), oplog (the append-only
// mutation log), and meta (device id, schema version, sync cursors).
//
// Grounded on the teacher's internal/storage/sqlite/schema.go layout
// (CREATE TABLE IF NOT EXISTS blocks followed by their indexes,
// inline CHECK constraints on enum-shaped columns).
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'todo',
	priority    TEXT NOT NULL DEFAULT 'medium',
	owner       TEXT NOT NULL DEFAULT '',
	due_at      TEXT NOT NULL DEFAULT '',
	recurrence  TEXT NOT NULL DEFAULT '',
	blocked_by  TEXT NOT NULL DEFAULT '[]',
	labels      TEXT NOT NULL DEFAULT '[]',
	notes       TEXT NOT NULL DEFAULT '[]',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	deleted_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS oplog (
	rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	task_id    TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	op_type    TEXT NOT NULL CHECK (op_type IN ('create', 'update', 'delete')),
	field      TEXT NOT NULL DEFAULT '',
	value      TEXT NOT NULL DEFAULT '',
	timestamp  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_oplog_task_id ON oplog(task_id);
CREATE INDEX IF NOT EXISTS idx_oplog_device_id ON oplog(device_id);
CREATE INDEX IF NOT EXISTS idx_oplog_task_ts_id ON oplog(task_id, timestamp, id);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
