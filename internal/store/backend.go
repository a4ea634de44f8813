package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a key has no entry.
	ErrNotFound = errors.New("store: key not found")
	// ErrVersionConflict is returned when a write's expected revision is stale.
	ErrVersionConflict = errors.New("store: version conflict")
)

// AnyRevision disables the revision check on Put.
const AnyRevision int64 = -1

// Entry is the versioned envelope every value is stored in.
type Entry struct {
	Key       string          `json:"key"`
	Revision  int64           `json:"version"`
	Schema    string          `json:"schema,omitempty"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Backend persists entries. Put stores e with revision expected+1 when the
// current revision equals expected (0 meaning absent), or unconditionally
// with AnyRevision. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, e Entry, expected int64) (Entry, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return copyEntry(e), nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, e Entry, expected int64) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.entries[e.Key].Revision
	if expected != AnyRevision && current != expected {
		return Entry{}, ErrVersionConflict
	}
	e.Revision = current + 1
	e = copyEntry(e)
	m.entries[e.Key] = e
	return copyEntry(e), nil
}

// Delete implements Backend. Deleting a missing key is not an error.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// List implements Backend. Entries are sorted by key.
func (m *MemoryBackend) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}

func copyEntry(e Entry) Entry {
	e.Data = append(json.RawMessage(nil), e.Data...)
	return e
}
