// Package store is the application state store. It replaces ad-hoc browser
// storage with typed, versioned entries behind a pluggable Backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/assessment-wizard/internal/schemas"
	embedded "github.com/jonathan/assessment-wizard/schemas"
)

// Well-known keys.
const (
	KeyResumeAnalysis   = "resumeAnalysis"
	KeyJobSuggestions   = "jobSuggestions"
	KeyAptitude         = "aptitudeTestData"
	KeyScenario         = "scenarioBasedTestData"
	KeyCoding           = "codingTestData"
	KeyInterview        = "interviewData"
	KeyWizardState      = "wizardState"
	KeyAccessToken      = "accessToken"
	KeyLegacyToken      = "token"
	KeyLegacyBehavioral = "behavioralTestData"
)

// legacyKeys maps old key names to their replacements.
var legacyKeys = map[string]string{
	KeyLegacyBehavioral: KeyScenario,
}

// keySchemas names the schema values under a key must satisfy.
var keySchemas = map[string]string{
	KeyWizardState: embedded.WizardState,
}

// maxUpdateAttempts bounds the optimistic retry loop in Update.
const maxUpdateAttempts = 5

// Store reads and writes JSON values. A Store is safe for concurrent use when its Backend is.
type Store struct {
	backend   Backend
	namespace string
	sealer    *Sealer
	validator *schemas.Validator
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts secrets written through SetSecret.
func WithSealer(s *Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// New creates a store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		validator: schemas.NewValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithNamespace returns a view of the store whose keys live under ns.
// Sessions use this to keep their entries apart.
func (s *Store) WithNamespace(ns string) *Store {
	c := *s
	c.namespace = s.namespace + ns + "/"
	return &c
}

// Namespace returns the key prefix of this view.
func (s *Store) Namespace() string {
	return s.namespace
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) fullKey(key string) string {
	return s.namespace + key
}

// Get returns the raw entry for key.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	e, err := s.backend.Get(ctx, s.fullKey(key))
	if err != nil {
		return Entry{}, err
	}
	e.Key = key
	return e, nil
}

// Load decodes the value under key into v.
func (s *Store) Load(ctx context.Context, key string, v any) (Entry, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return e, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return e, nil
}

// Save writes v under key regardless of the current revision.
func (s *Store) Save(ctx context.Context, key string, v any) (Entry, error) {
	return s.SaveIf(ctx, key, v, AnyRevision)
}

// SaveIf writes v under key only if the stored revision equals expected.
func (s *Store) SaveIf(ctx context.Context, key string, v any, expected int64) (Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.put(ctx, key, data, expected)
}

func (s *Store) put(ctx context.Context, key string, data []byte, expected int64) (Entry, error) {
	schema := keySchemas[key]
	if schema != "" {
		if err := s.validator.Validate(schema, data); err != nil {
			return Entry{}, fmt.Errorf("store: %s: %w", key, err)
		}
	}
	e, err := s.backend.Put(ctx, Entry{
		Key:       s.fullKey(key),
		Schema:    schema,
		Data:      data,
		UpdatedAt: s.now().UTC(),
	}, expected)
	if err != nil {
		return Entry{}, err
	}
	e.Key = key
	return e, nil
}

// Update applies fn to the current value under key and writes the result,
// retrying when a concurrent writer wins the race. cur is nil when the key is absent.
func (s *Store) Update(ctx context.Context, key string, fn func(cur json.RawMessage) (any, error)) (Entry, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var (
			cur json.RawMessage
			rev int64
		)
		e, err := s.Get(ctx, key)
		switch {
		case err == nil:
			cur, rev = e.Data, e.Revision
		case !errors.Is(err, ErrNotFound):
			return Entry{}, err
		}

		next, err := fn(cur)
		if err != nil {
			return Entry{}, err
		}
		saved, err := s.SaveIf(ctx, key, next, rev)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return saved, err
	}
	return Entry{}, fmt.Errorf("store: update %s: %w after %d attempts", key, ErrVersionConflict, maxUpdateAttempts)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.fullKey(key))
}

// List returns the entries in this namespace, keys relative to it.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.backend.List(ctx, s.namespace)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = strings.TrimPrefix(entries[i].Key, s.namespace)
	}
	return entries, nil
}

type sealedValue struct {
	Sealed string `json:"sealed"`
}

// SetSecret stores a secret, sealed when the store has a sealer.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	if s.sealer == nil {
		_, err := s.Save(ctx, key, value)
		return err
	}
	sealed, err := s.sealer.Seal([]byte(value))
	if err != nil {
		return err
	}
	_, err = s.Save(ctx, key, sealedValue{Sealed: sealed})
	return err
}

// Secret reads a secret written by SetSecret or stored as a plain string.
func (s *Store) Secret(ctx context.Context, key string) (string, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	var plain string
	if err := json.Unmarshal(e.Data, &plain); err == nil {
		return plain, nil
	}
	var sv sealedValue
	if err := json.Unmarshal(e.Data, &sv); err != nil || sv.Sealed == "" {
		return "", fmt.Errorf("store: %s is not a secret", key)
	}
	if s.sealer == nil {
		return "", ErrSealed
	}
	data, err := s.sealer.Open(sv.Sealed)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Token returns the API access token, preferring accessToken over the legacy
// token key. A missing token is not an error.
func (s *Store) Token(ctx context.Context) (string, error) {
	for _, key := range []string{KeyAccessToken, KeyLegacyToken} {
		t, err := s.Secret(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if t != "" {
			return t, nil
		}
	}
	return "", nil
}

// Migrate renames legacy keys in this namespace. A legacy entry is dropped
// when its replacement already exists. It returns the legacy keys handled.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	var migrated []string
	for oldKey, newKey := range legacyKeys {
		old, err := s.Get(ctx, oldKey)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return migrated, err
		}
		if _, err := s.put(ctx, newKey, old.Data, 0); err != nil && !errors.Is(err, ErrVersionConflict) {
			return migrated, fmt.Errorf("store: migrate %s: %w", oldKey, err)
		}
		if err := s.Delete(ctx, oldKey); err != nil {
			return migrated, err
		}
		migrated = append(migrated, oldKey)
	}
	return migrated, nil
}
