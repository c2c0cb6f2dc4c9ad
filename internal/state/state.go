// Package state is a small key/value table for per-integration bookkeeping
// (OAuth handshake nonce, last sync time).
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS adapter_state (
			adapter TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (adapter, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure adapter_state table: %w", err)
	}
	return nil
}

func Get(ctx context.Context, db *sql.DB, adapter string, key string) (string, bool, error) {
	if err := ensureTable(ctx, db); err != nil {
		return "", false, err
	}
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM adapter_state WHERE adapter = ? AND key = ?`, adapter, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get adapter state: %w", err)
	}
	return v, true, nil
}

func Set(ctx context.Context, db *sql.DB, adapter string, key string, value string) error {
	if err := ensureTable(ctx, db); err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `
		INSERT INTO adapter_state (adapter, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(adapter, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, adapter, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set adapter state: %w", err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func Delete(ctx context.Context, db *sql.DB, adapter string, key string) error {
	if err := ensureTable(ctx, db); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM adapter_state WHERE adapter = ? AND key = ?`, adapter, key); err != nil {
		return fmt.Errorf("failed to delete adapter state: %w", err)
	}
	return nil
}

// Tracker scopes state to one integration so callers need not pass the
// adapter name around.
type Tracker struct {
	db      *sql.DB
	adapter string
}

func NewTracker(db *sql.DB, adapter string) *Tracker {
	return &Tracker{db: db, adapter: adapter}
}

func (t *Tracker) Get(ctx context.Context, key string) (string, bool, error) {
	return Get(ctx, t.db, t.adapter, key)
}

func (t *Tracker) Set(ctx context.Context, key, value string) error {
	return Set(ctx, t.db, t.adapter, key, value)
}

func (t *Tracker) Delete(ctx context.Context, key string) error {
	return Delete(ctx, t.db, t.adapter, key)
}

// MarkTime stores ts as RFC3339.
func (t *Tracker) MarkTime(ctx context.Context, key string, ts time.Time) error {
	return t.Set(ctx, key, ts.UTC().Format(time.RFC3339))
}

// Time reads a value written by MarkTime.
func (t *Tracker) Time(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := t.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse %s/%s: %w", t.adapter, key, err)
	}
	return ts, true, nil
}
