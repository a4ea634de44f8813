package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is a persisted wizard session. State holds the wizard snapshot.
type Session struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Step      string          `json:"step"`
	Path      string          `json:"path,omitempty"`
	State     json.RawMessage `json:"state"`
	Revision  int64           `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StepRecord is one transition in a session's history.
type StepRecord struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Op        string    `json:"op"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultListLimit caps ListSessions when no limit is given.
const DefaultListLimit = 50
