package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/assessment-wizard/internal/store"
)

// Entries adapts the database to store.Backend.
type Entries struct {
	db *DB
}

var _ store.Backend = (*Entries)(nil)

// Entries returns a store backend over the store_entries table.
func (db *DB) Entries() *Entries {
	return &Entries{db: db}
}

// Get implements store.Backend.
func (e *Entries) Get(ctx context.Context, key string) (store.Entry, error) {
	var (
		out  store.Entry
		data []byte
	)
	err := e.db.pool.QueryRow(ctx,
		`SELECT key, revision, schema, data, updated_at FROM store_entries WHERE key = $1`, key,
	).Scan(&out.Key, &out.Revision, &out.Schema, &data, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("failed to get entry %s: %w", key, err)
	}
	out.Data = data
	return out, nil
}

// Put implements store.Backend. The revision check and write share one transaction.
func (e *Entries) Put(ctx context.Context, entry store.Entry, expected int64) (store.Entry, error) {
	tx, err := e.db.pool.Begin(ctx)
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT revision FROM store_entries WHERE key = $1 FOR UPDATE`, entry.Key,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return store.Entry{}, fmt.Errorf("failed to read revision %s: %w", entry.Key, err)
	}
	if expected != store.AnyRevision && current != expected {
		return store.Entry{}, store.ErrVersionConflict
	}
	entry.Revision = current + 1

	if current == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO store_entries (key, revision, schema, data, updated_at)
			 VALUES ($1, 1, $2, $3, $4)
			 ON CONFLICT (key) DO NOTHING`,
			entry.Key, entry.Schema, []byte(entry.Data), entry.UpdatedAt,
		)
		if err != nil {
			return store.Entry{}, fmt.Errorf("failed to insert entry %s: %w", entry.Key, err)
		}
		if tag.RowsAffected() == 0 && expected != store.AnyRevision {
			// Another writer created the key first.
			return store.Entry{}, store.ErrVersionConflict
		}
		if tag.RowsAffected() == 1 {
			if err := tx.Commit(ctx); err != nil {
				return store.Entry{}, fmt.Errorf("failed to commit entry %s: %w", entry.Key, err)
			}
			return entry, nil
		}
	}

	err = tx.QueryRow(ctx,
		`UPDATE store_entries SET revision = revision + 1, schema = $2, data = $3, updated_at = $4
		 WHERE key = $1
		 RETURNING revision`,
		entry.Key, entry.Schema, []byte(entry.Data), entry.UpdatedAt,
	).Scan(&entry.Revision)
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to put entry %s: %w", entry.Key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Entry{}, fmt.Errorf("failed to commit entry %s: %w", entry.Key, err)
	}
	return entry, nil
}

// Delete implements store.Backend.
func (e *Entries) Delete(ctx context.Context, key string) error {
	if _, err := e.db.pool.Exec(ctx, `DELETE FROM store_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", key, err)
	}
	return nil
}

// List implements store.Backend.
func (e *Entries) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	rows, err := e.db.pool.Query(ctx,
		`SELECT key, revision, schema, data, updated_at FROM store_entries
		 WHERE left(key, length($1)) = $1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var (
			entry store.Entry
			data  []byte
		)
		if err := rows.Scan(&entry.Key, &entry.Revision, &entry.Schema, &data, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.Data = data
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Close implements store.Backend. The pool is owned by DB and stays open.
func (e *Entries) Close() error {
	return nil
}
