package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// GetMeta reads a single key from the meta table. It returns ("", false,
// nil) when the key is absent.
func GetMeta(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: read meta %q: %w", key, err)
	}
	return v, true, nil
}

// SetMeta upserts a single key in the meta table.
func SetMeta(ctx context.Context, e interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, key, value string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("storage: write meta %q: %w", key, err)
	}
	return nil
}

// DeviceID returns this database's stable per-installation device id,
// creating one on first use. Initialization is idempotent and atomic
// (insert-or-ignore then read-back), so two processes racing on first
// open still converge on a single device id (spec.md section 9).
func DeviceID(ctx context.Context, db *DB) (string, error) {
	candidate := uuid.New().String()
	_, err := db.sqlDB.ExecContext(ctx, `
		INSERT OR IGNORE INTO meta (key, value) VALUES ('device_id', ?)
	`, candidate)
	if err != nil {
		return "", fmt.Errorf("storage: initialize device_id: %w", err)
	}
	v, ok, err := GetMeta(ctx, db.sqlDB, "device_id")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("storage: device_id missing after initialization")
	}
	return v, nil
}

// PushHWMKey and PullCursorKey build the per-device meta keys the sync
// engine uses for its high-water mark and pull cursor (spec.md section 3).
func PushHWMKey(deviceID string) string   { return "push_hwm_" + deviceID }
func PullCursorKey(deviceID string) string { return "pull_cursor_" + deviceID }

// ParseInt64 is a small helper so callers of GetMeta don't each re-import
// strconv for the hwm, which is stored as a decimal string.
func ParseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
