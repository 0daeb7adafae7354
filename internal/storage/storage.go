// Package storage is the transactional adapter over a single SQLite file:
// open/pragma setup, the single-writer lock, and the transaction-scope
// primitive every other component builds on.
//
// Grounded on the teacher's connection-string convention
// ("file:<path>?...", ncruces/go-sqlite3 registered as "sqlite3" via the
// driver/embed side-effect imports — internal/syncbranch/syncbranch.go,
// cmd/bd/migrate.go) and on storage.Transaction's doc comment describing
// BEGIN IMMEDIATE as the way concurrent writers are serialized
// (internal/storage/storage.go in the teacher).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps a single SQLite connection pool, serializing writers the way
// spec.md section 5 requires: one process normally holds exactly one write
// connection, readers may run concurrently.
type DB struct {
	sqlDB *sql.DB
	path  string
	lock  *flock.Flock
	wmu   sync.Mutex // serializes writer transactions within this process
}

// Open creates (if necessary) and opens the database at path, enforcing
// WAL mode, foreign-key checks, and an owner-only file permission on
// first creation (spec.md section 4.B).
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // one write connection at a time, per spec.md section 5

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("storage: enable WAL: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
	}

	if isNew {
		// Best-effort on non-POSIX platforms; the permission bit itself is
		// the POSIX-owner-only requirement from spec.md section 4.B.
		_ = os.Chmod(path, 0o600)
	}

	lock := flock.New(path + ".lock")

	db := &DB{sqlDB: sqlDB, path: path, lock: lock}
	if err := RunMigrations(ctx, db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.sqlDB.Close()
}

// Path returns the filesystem path this DB was opened from.
func (d *DB) Path() string { return d.path }

// SQL exposes the raw *sql.DB for read-only queries that don't need a
// transaction (e.g. listing).
func (d *DB) SQL() *sql.DB { return d.sqlDB }

// WithTx runs fn inside a single write transaction, serialized against any
// other writer in this process via wmu and, across processes, via the
// advisory file lock. A panic or error inside fn rolls the transaction
// back; returning nil commits.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()

	if err := d.lock.Lock(); err != nil {
		return fmt.Errorf("storage: acquire advisory lock: %w", err)
	}
	defer d.lock.Unlock()

	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit transaction: %w", err)
	}
	committed = true
	return nil
}
