package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/assessment-wizard/internal/schemas"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
	}
}

func TestBackend_Conformance(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

			_, err := b.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			e, err := b.Put(ctx, Entry{Key: "a", Data: json.RawMessage(`1`), UpdatedAt: now}, 0)
			require.NoError(t, err)
			assert.Equal(t, int64(1), e.Revision)

			_, err = b.Put(ctx, Entry{Key: "a", Data: json.RawMessage(`2`), UpdatedAt: now}, 0)
			assert.ErrorIs(t, err, ErrVersionConflict)

			e, err = b.Put(ctx, Entry{Key: "a", Data: json.RawMessage(`2`), UpdatedAt: now}, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(2), e.Revision)

			e, err = b.Put(ctx, Entry{Key: "a", Data: json.RawMessage(`3`), UpdatedAt: now}, AnyRevision)
			require.NoError(t, err)
			assert.Equal(t, int64(3), e.Revision)

			got, err := b.Get(ctx, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `3`, string(got.Data))
			assert.True(t, now.Equal(got.UpdatedAt))

			_, err = b.Put(ctx, Entry{Key: "s1/x", Data: json.RawMessage(`"x"`), UpdatedAt: now}, 0)
			require.NoError(t, err)
			_, err = b.Put(ctx, Entry{Key: "s1/y", Data: json.RawMessage(`"y"`), UpdatedAt: now}, 0)
			require.NoError(t, err)

			listed, err := b.List(ctx, "s1/")
			require.NoError(t, err)
			require.Len(t, listed, 2)
			assert.Equal(t, "s1/x", listed[0].Key)
			assert.Equal(t, "s1/y", listed[1].Key)

			require.NoError(t, b.Delete(ctx, "a"))
			require.NoError(t, b.Delete(ctx, "a"))
			_, err = b.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())

	type suggestions struct {
		Role string `json:"role"`
	}
	_, err := s.Save(ctx, KeyJobSuggestions, suggestions{Role: "Backend Engineer"})
	require.NoError(t, err)

	var got suggestions
	e, err := s.Load(ctx, KeyJobSuggestions, &got)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", got.Role)
	assert.Equal(t, KeyJobSuggestions, e.Key)
	assert.Equal(t, int64(1), e.Revision)
}

func TestStore_ValidatesWizardState(t *testing.T) {
	s := New(NewMemoryBackend())
	_, err := s.Save(context.Background(), KeyWizardState, map[string]any{"step": "nowhere"})
	var validationErr *schemas.ValidationError
	require.ErrorAs(t, err, &validationErr)

	e, err := s.Save(context.Background(), KeyWizardState, map[string]any{"version": 2, "step": "upload"})
	require.NoError(t, err)
	assert.Equal(t, "wizard_state", e.Schema)
}

func TestStore_SaveIfConflict(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())
	e, err := s.Save(ctx, KeyAptitude, []string{"A"})
	require.NoError(t, err)

	_, err = s.SaveIf(ctx, KeyAptitude, []string{"B"}, e.Revision+1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = s.SaveIf(ctx, KeyAptitude, []string{"B"}, e.Revision)
	assert.NoError(t, err)
}

func TestStore_UpdateConcurrent(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b)
			const writers = 4

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Update(ctx, "counter", func(cur json.RawMessage) (any, error) {
						var n int
						if cur != nil {
							if err := json.Unmarshal(cur, &n); err != nil {
								return nil, err
							}
						}
						return n + 1, nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			var n int
			_, err := s.Load(ctx, "counter", &n)
			require.NoError(t, err)
			assert.Equal(t, writers, n)
		})
	}
}

func TestStore_Namespace(t *testing.T) {
	ctx := context.Background()
	root := New(NewMemoryBackend())
	a := root.WithNamespace("session-a")
	b := root.WithNamespace("session-b")

	_, err := a.Save(ctx, KeyInterview, "a")
	require.NoError(t, err)
	_, err = b.Save(ctx, KeyInterview, "b")
	require.NoError(t, err)

	var got string
	_, err = a.Load(ctx, KeyInterview, &got)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	entries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KeyInterview, entries[0].Key)

	all, err := root.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer("correct horse")
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("jwt-token"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "jwt-token")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", string(plain))

	other, err := NewSealer("wrong")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealed)

	_, err = NewSealer("")
	assert.Error(t, err)
}

func TestStore_Secrets(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	sealer, err := NewSealer("passphrase")
	require.NoError(t, err)
	s := New(backend, WithSealer(sealer))

	require.NoError(t, s.SetSecret(ctx, KeyAccessToken, "abc"))
	raw, err := backend.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.NotContains(t, string(raw.Data), "abc")

	got, err := s.Secret(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = New(backend).Secret(ctx, KeyAccessToken)
	assert.ErrorIs(t, err, ErrSealed)
}

func TestStore_TokenPrecedence(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())

	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.SetSecret(ctx, KeyLegacyToken, "legacy"))
	token, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "legacy", token)

	require.NoError(t, s.SetSecret(ctx, KeyAccessToken, "current"))
	token, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "current", token)
}

func TestStore_Migrate(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())

	_, err := s.Save(ctx, KeyLegacyBehavioral, map[string]any{"answers": []string{"x"}})
	require.NoError(t, err)

	migrated, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyLegacyBehavioral}, migrated)

	var data map[string][]string
	_, err = s.Load(ctx, KeyScenario, &data)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, data["answers"])

	_, err = s.Get(ctx, KeyLegacyBehavioral)
	assert.ErrorIs(t, err, ErrNotFound)

	migrated, err = s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, migrated)
}

func TestStore_MigrateKeepsNewerValue(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend())
	_, err := s.Save(ctx, KeyScenario, "new")
	require.NoError(t, err)
	_, err = s.Save(ctx, KeyLegacyBehavioral, "old")
	require.NoError(t, err)

	_, err = s.Migrate(ctx)
	require.NoError(t, err)

	var got string
	_, err = s.Load(ctx, KeyScenario, &got)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}
