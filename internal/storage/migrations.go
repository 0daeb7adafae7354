package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only, versioned schema change.
//
// Grounded on the teacher's internal/storage/sqlite/migrations.go ordered
// []Migration{Name, Func} list and its RunMigrations, which wraps every
// not-yet-applied migration in one transaction and bumps the schema
// version atomically — scoped here to this spec's three-table schema
// instead of beads' several dozen incremental columns.
type Migration struct {
	Version int
	Name    string
	Migrate func(ctx context.Context, tx *sql.Tx) error
}

var migrationsList = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Migrate: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, schema)
			return err
		},
	},
}

// RunMigrations applies every migration whose version is greater than the
// current schema_version, each inside its own transaction; a failure
// aborts that transaction and leaves the previous schema intact
// (spec.md section 4.C).
func RunMigrations(ctx context.Context, db *DB) error {
	if _, err := db.sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("bootstrap meta table: %w", err)
	}

	current, err := schemaVersion(ctx, db.sqlDB)
	if err != nil {
		return err
	}

	for _, m := range migrationsList {
		if m.Version <= current {
			continue
		}
		if err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if err := m.Migrate(ctx, tx); err != nil {
				return fmt.Errorf("migration %q: %w", m.Name, err)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO meta (key, value) VALUES ('schema_version', ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value
			`, fmt.Sprint(m.Version))
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}
