package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/db"
	"github.com/jonathan/assessment-wizard/internal/events"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// session is a live coordinator together with its persisted record.
type session struct {
	coord *assessment.Coordinator
	owner string
	token atomic.Value // string; the latest bearer token seen for the session
	used  atomic.Int64 // unix nanoseconds of the last lookup

	mu     sync.Mutex // guards record
	record *db.Session
}

// Token implements apiclient.TokenSource. Background work such as frame
// analysis runs outside any request, so it uses the last token the owner sent.
func (s *session) Token(context.Context) (string, error) {
	t, _ := s.token.Load().(string)
	return t, nil
}

// SessionNamespace returns the store namespace holding a session's payloads.
func SessionNamespace(id uuid.UUID) string {
	return "data/" + id.String()
}

// forward attaches the session's token to ctx for shared components, such as
// the transcriber and the report builder, whose clients carry no token.
func (s *session) forward(ctx context.Context) context.Context {
	if t, _ := s.token.Load().(string); t != "" {
		return apiclient.WithToken(ctx, t)
	}
	return ctx
}

func (s *session) setToken(t string) {
	if t != "" {
		s.token.Store(t)
	}
}

// registry tracks live sessions. Sessions evicted or created by another
// server process are reloaded from the repository on demand.
type registry struct {
	srv  *Server
	idle time.Duration
	now  func() time.Time

	mu    sync.Mutex
	items map[uuid.UUID]*session

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// newRegistry starts an idle sweep when idle is positive.
func newRegistry(srv *Server, idle time.Duration) *registry {
	r := &registry{srv: srv, idle: idle, now: time.Now, items: make(map[uuid.UUID]*session)}
	if idle > 0 {
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.sweep(min(idle/2, time.Minute))
	}
	return r
}

func (r *registry) touch(sess *session) {
	sess.used.Store(r.now().UnixNano())
}

func (r *registry) sweep(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stop:
			return
		}
	}
}

// evictIdle closes sessions untouched for longer than the idle timeout.
// Sessions with a call in flight or a live interview stay.
func (r *registry) evictIdle() int {
	cutoff := r.now().Add(-r.idle).UnixNano()
	var evicted []*session
	r.mu.Lock()
	for id, sess := range r.items {
		if sess.used.Load() < cutoff && sess.coord.Idle() {
			delete(r.items, id)
			evicted = append(evicted, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range evicted {
		r.srv.logger.Debug("evicting idle session", zap.String("session_id", sess.coord.ID()))
		sess.coord.Close()
	}
	return len(evicted)
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// create starts a new session for owner.
func (r *registry) create(ctx context.Context, owner, token string) (*session, error) {
	rec := &db.Session{ID: uuid.New(), UserID: owner, Step: string(wizard.StepWelcome)}
	sess, err := r.build(rec, token)
	if err != nil {
		return nil, err
	}
	state, err := json.Marshal(sess.coord.Snapshot())
	if err != nil {
		return nil, err
	}
	rec.State = state
	if err := r.srv.sessions.CreateSession(ctx, rec); err != nil {
		sess.coord.Close()
		return nil, err
	}

	r.touch(sess)
	r.mu.Lock()
	r.items[rec.ID] = sess
	r.mu.Unlock()
	return sess, nil
}

// get returns the session if owner may access it.
func (r *registry) get(ctx context.Context, id uuid.UUID, owner, token string) (*session, error) {
	r.mu.Lock()
	sess, ok := r.items[id]
	r.mu.Unlock()
	if ok {
		if sess.owner != owner {
			return nil, ErrSessionNotFound
		}
		sess.setToken(token)
		r.touch(sess)
		return sess, nil
	}

	rec, err := r.srv.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if rec.UserID != owner {
		return nil, ErrSessionNotFound
	}
	sess, err = r.build(rec, token)
	if err != nil {
		return nil, err
	}
	if err := r.restore(ctx, sess); err != nil {
		sess.coord.Close()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[id]; ok {
		// Lost a race with a concurrent load.
		sess.coord.Close()
		r.touch(existing)
		return existing, nil
	}
	r.touch(sess)
	r.items[id] = sess
	return sess, nil
}

// restore loads the latest wizard snapshot, preferring the session's store
// entry, which is written on every transition, over the record.
func (r *registry) restore(ctx context.Context, sess *session) error {
	ok, err := sess.coord.Load(ctx)
	if err != nil {
		r.srv.logger.Warn("failed to load stored wizard state", zap.String("session_id", sess.coord.ID()), zap.Error(err))
	}
	if ok {
		return nil
	}
	if len(sess.record.State) == 0 {
		return nil
	}
	var st wizard.State
	if err := json.Unmarshal(sess.record.State, &st); err != nil {
		return fmt.Errorf("failed to decode session state: %w", err)
	}
	return sess.coord.Restore(st)
}

func (r *registry) build(rec *db.Session, token string) (*session, error) {
	srv := r.srv
	sess := &session{owner: rec.UserID, record: rec}
	sess.setToken(token)

	var st = srv.store
	if st != nil {
		st = st.WithNamespace(SessionNamespace(rec.ID))
	}
	pubs := events.Multi{srv.broker, &recordSync{repo: srv.sessions, sess: sess, logger: srv.logger}}
	if srv.events != nil {
		pubs = append(pubs, srv.events)
	}

	coord, err := assessment.New(assessment.Options{
		SessionID:     rec.ID.String(),
		API:           srv.newAPI(sess),
		Store:         st,
		Events:        pubs,
		Devices:       func() media.Device { return media.NewPushDevice() },
		Transcriber:   srv.transcriber,
		Reports:       srv.reports,
		PollInterval:  srv.pollInterval,
		FrameInterval: srv.frameInterval,
		Defaults:      srv.defaults,
		Logger:        srv.logger,
	})
	if err != nil {
		return nil, err
	}
	sess.coord = coord
	return sess, nil
}

// remove closes and forgets a session.
func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	sess, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if ok {
		sess.coord.Close()
	}
}

// closeAll stops the idle sweep and closes every live session.
func (r *registry) closeAll() {
	if r.stop != nil {
		r.once.Do(func() {
			close(r.stop)
			<-r.done
		})
	}
	r.mu.Lock()
	items := r.items
	r.items = make(map[uuid.UUID]*session)
	r.mu.Unlock()
	for _, sess := range items {
		sess.coord.Close()
	}
}

// recordSync mirrors step changes into the session record and step history.
type recordSync struct {
	repo   SessionRepository
	sess   *session
	logger *zap.Logger
}

// Publish implements events.Publisher.
func (p *recordSync) Publish(ctx context.Context, e events.Event) error {
	if e.Type != events.TypeStepChanged || p.sess.coord == nil {
		return nil
	}
	state, err := json.Marshal(p.sess.coord.Snapshot())
	if err != nil {
		return err
	}

	p.sess.mu.Lock()
	defer p.sess.mu.Unlock()
	rec := p.sess.record
	rec.Step, rec.Path, rec.State = e.To, e.Path, state
	err = p.repo.SaveSession(ctx, rec)
	if errors.Is(err, db.ErrConflict) {
		// Another process saved first; take its revision and overwrite.
		cur, getErr := p.repo.GetSession(ctx, rec.ID)
		if getErr != nil {
			return getErr
		}
		rec.Revision = cur.Revision
		err = p.repo.SaveSession(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}

	op := "forward"
	if wizard.Step(e.To).Number() < wizard.Step(e.From).Number() {
		op = "back"
	}
	return p.repo.RecordStep(ctx, &db.StepRecord{SessionID: rec.ID, From: e.From, To: e.To, Op: op})
}

// Close implements events.Publisher.
func (p *recordSync) Close() error { return nil }

var _ apiclient.TokenSource = (*session)(nil)
