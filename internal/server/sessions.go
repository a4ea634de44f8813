package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/assessment-wizard/internal/db"
	"github.com/jonathan/assessment-wizard/internal/store"
)

// SessionRepository persists session records and their step history.
// *db.DB implements it over PostgreSQL; StoreSessions over a store backend.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *db.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]db.Session, error)
	SaveSession(ctx context.Context, s *db.Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	RecordStep(ctx context.Context, rec *db.StepRecord) error
	ListSteps(ctx context.Context, sessionID uuid.UUID) ([]db.StepRecord, error)
}

var (
	_ SessionRepository = (*db.DB)(nil)
	_ SessionRepository = (*StoreSessions)(nil)
)

// StoreSessions keeps session records in a store, for servers running
// without PostgreSQL.
type StoreSessions struct {
	records *store.Store
	steps   *store.Store
	now     func() time.Time

	mu     sync.Mutex
	stepID int64
}

// NewStoreSessions creates a repository over st.
func NewStoreSessions(st *store.Store) *StoreSessions {
	return &StoreSessions{
		records: st.WithNamespace("sessions"),
		steps:   st.WithNamespace("steps"),
		now:     time.Now,
	}
}

// CreateSession implements SessionRepository.
func (r *StoreSessions) CreateSession(ctx context.Context, s *db.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := r.now().UTC()
	s.Revision, s.CreatedAt, s.UpdatedAt = 1, now, now
	if _, err := r.records.SaveIf(ctx, s.ID.String(), s, 0); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("failed to create session: %w", db.ErrConflict)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *StoreSessions) get(ctx context.Context, id uuid.UUID) (*db.Session, int64, error) {
	var s db.Session
	e, err := r.records.Load(ctx, id.String(), &s)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, db.ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, e.Revision, nil
}

// GetSession implements SessionRepository.
func (r *StoreSessions) GetSession(ctx context.Context, id uuid.UUID) (*db.Session, error) {
	s, _, err := r.get(ctx, id)
	return s, err
}

// ListSessions implements SessionRepository.
func (r *StoreSessions) ListSessions(ctx context.Context, userID string, limit int) ([]db.Session, error) {
	if limit <= 0 {
		limit = db.DefaultListLimit
	}
	entries, err := r.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var sessions []db.Session
	for _, e := range entries {
		var s db.Session
		if err := json.Unmarshal(e.Data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", e.Key, err)
		}
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt) })
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// SaveSession implements SessionRepository with the same revision check as
// the database: a stale s.Revision returns db.ErrConflict.
func (r *StoreSessions) SaveSession(ctx context.Context, s *db.Session) error {
	cur, entryRev, err := r.get(ctx, s.ID)
	if err != nil {
		return err
	}
	if cur.Revision != s.Revision {
		return db.ErrConflict
	}
	next := *s
	next.Revision = s.Revision + 1
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = r.now().UTC()
	if _, err := r.records.SaveIf(ctx, s.ID.String(), next, entryRev); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return db.ErrConflict
		}
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.Revision, s.UpdatedAt = next.Revision, next.UpdatedAt
	return nil
}

// DeleteSession implements SessionRepository.
func (r *StoreSessions) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, _, err := r.get(ctx, id); err != nil {
		return err
	}
	if err := r.records.Delete(ctx, id.String()); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := r.steps.Delete(ctx, id.String()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	return nil
}

// RecordStep implements SessionRepository.
func (r *StoreSessions) RecordStep(ctx context.Context, rec *db.StepRecord) error {
	r.mu.Lock()
	r.stepID++
	rec.ID = r.stepID
	r.mu.Unlock()
	rec.CreatedAt = r.now().UTC()

	_, err := r.steps.Update(ctx, rec.SessionID.String(), func(cur json.RawMessage) (any, error) {
		var steps []db.StepRecord
		if cur != nil {
			if err := json.Unmarshal(cur, &steps); err != nil {
				return nil, err
			}
		}
		return append(steps, *rec), nil
	})
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// ListSteps returns a session's transitions in order.
func (r *StoreSessions) ListSteps(ctx context.Context, sessionID uuid.UUID) ([]db.StepRecord, error) {
	var steps []db.StepRecord
	if _, err := r.steps.Load(ctx, sessionID.String(), &steps); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return steps, nil
}
