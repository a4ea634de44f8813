package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists entries in a local SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key        TEXT PRIMARY KEY,
		revision   INTEGER NOT NULL,
		schema     TEXT NOT NULL DEFAULT '',
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (Entry, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT key, revision, schema, data, updated_at FROM entries WHERE key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("store: get %s: %w", key, err)
	}
	return e, nil
}

// Put implements Backend.
func (b *SQLiteBackend) Put(ctx context.Context, e Entry, expected int64) (Entry, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM entries WHERE key = ?`, e.Key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("store: read revision %s: %w", e.Key, err)
	}
	if expected != AnyRevision && current != expected {
		return Entry{}, ErrVersionConflict
	}
	e.Revision = current + 1

	_, err = tx.ExecContext(ctx, `INSERT INTO entries (key, revision, schema, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			revision = excluded.revision,
			schema = excluded.schema,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		e.Key, e.Revision, e.Schema, string(e.Data), e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("store: put %s: %w", e.Key, err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("store: commit %s: %w", e.Key, err)
	}
	return copyEntry(e), nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, revision, schema, data, updated_at FROM entries
		WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e         Entry
		data      string
		updatedAt string
	)
	if err := s.Scan(&e.Key, &e.Revision, &e.Schema, &data, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.Data = []byte(data)
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}
	e.UpdatedAt = t
	return e, nil
}
