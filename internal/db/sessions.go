package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Session Methods
// -----------------------------------------------------------------------------

const sessionColumns = `id, user_id, step, path, state, revision, created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var state []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Step, &s.Path, &state, &s.Revision, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.State = state
	return &s, nil
}

// CreateSession inserts a new session. A nil ID is replaced with a fresh UUID.
func (db *DB) CreateSession(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO assessment_sessions (id, user_id, step, path, state, revision)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 RETURNING revision, created_at, updated_at`,
		s.ID, s.UserID, s.Step, s.Path, []byte(s.State),
	).Scan(&s.Revision, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := scanSession(db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (db *DB) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions
		 WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// SaveSession writes the session state if its revision is current, then
// increments s.Revision. A stale revision returns ErrConflict.
func (db *DB) SaveSession(ctx context.Context, s *Session) error {
	err := db.pool.QueryRow(ctx,
		`UPDATE assessment_sessions
		 SET step = $3, path = $4, state = $5, revision = revision + 1, updated_at = NOW()
		 WHERE id = $1 AND revision = $2
		 RETURNING revision, updated_at`,
		s.ID, s.Revision, s.Step, s.Path, []byte(s.State),
	).Scan(&s.Revision, &s.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if _, getErr := db.GetSession(ctx, s.ID); errors.Is(getErr, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}

// DeleteSession removes a session and its step history.
func (db *DB) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM assessment_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordStep appends a transition to the session history.
func (db *DB) RecordStep(ctx context.Context, rec *StepRecord) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO session_steps (session_id, from_step, to_step, op)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		rec.SessionID, rec.From, rec.To, rec.Op,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// ListSteps returns a session's transitions in order.
func (db *DB) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]StepRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, from_step, to_step, op, created_at
		 FROM session_steps WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.From, &rec.To, &rec.Op, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}
