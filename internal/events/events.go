// Package events publishes wizard progress to subscribers: a message broker,
// the log, and in-process listeners such as SSE streams.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/logging"
)

// Event types.
const (
	TypeStepChanged       = "step.changed"
	TypeSectionEvaluated  = "section.evaluated"
	TypeInterviewTurn     = "interview.turn"
	TypeInterviewComplete = "interview.completed"
	TypeError             = "error"
)

// Event is one notable change in an assessment session.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Path      string    `json:"path,omitempty"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}

// New returns an event with a fresh id and timestamp.
func New(sessionID, typ string) Event {
	return Event{ID: uuid.NewString(), SessionID: sessionID, Type: typ, At: time.Now().UTC()}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// LogPublisher writes events to a zap logger.
type LogPublisher struct {
	Logger *zap.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(_ context.Context, e Event) error {
	logging.OrNop(p.Logger).Info("assessment event",
		zap.String("type", e.Type),
		zap.String("session_id", e.SessionID),
		zap.String("from", e.From),
		zap.String("to", e.To),
		zap.String("path", e.Path))
	return nil
}

// Close implements Publisher.
func (LogPublisher) Close() error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// subscriberBuffer is the channel size per subscriber. Events for a slow
// subscriber are dropped once it is full.
const subscriberBuffer = 16

// Broker fans events out to in-process subscribers, keyed by session.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	closed bool
	logger *zap.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{}), logger: logging.OrNop(logger)}
}

// Subscribe returns a channel of events for sessionID and a function that
// ends the subscription. The channel is closed when the subscription ends.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sessionID][ch]; ok {
				delete(b.subs[sessionID], ch)
				if len(b.subs[sessionID]) == 0 {
					delete(b.subs, sessionID)
				}
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of subscribers for sessionID.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// Publish implements Publisher. It never blocks.
func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[e.SessionID] {
		select {
		case ch <- e:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("session_id", e.SessionID),
				zap.String("type", e.Type))
		}
	}
	return nil
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
	return nil
}
