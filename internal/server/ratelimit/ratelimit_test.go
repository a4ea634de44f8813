package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// frozen returns a limiter whose clock only moves when advanced.
func frozen(cfg *Config) (*Limiter, *time.Time) {
	l := NewLimiter(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := frozen(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := l.Allow("10.0.0.1", "/sessions/abc", http.MethodGet)
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "/sessions/abc", http.MethodGet)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, 6*time.Second, info.RetryAfter, float64(10*time.Millisecond))
	assert.True(t, info.ResetTime.After(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	other, _ := l.Allow("10.0.0.2", "/sessions/abc", http.MethodGet)
	assert.True(t, other, "clients have separate buckets")
}

func TestLimiter_Refill(t *testing.T) {
	l, now := frozen(&Config{Enabled: true, DefaultLimit: 60, DefaultWindow: time.Minute})
	defer l.Stop()

	for i := 0; i < 60; i++ {
		l.Allow("c", "/x", http.MethodGet)
	}
	allowed, _ := l.Allow("c", "/x", http.MethodGet)
	require.False(t, allowed)

	*now = now.Add(time.Second)
	allowed, _ = l.Allow("c", "/x", http.MethodGet)
	assert.True(t, allowed)
}

func TestLimiter_PatternSharesBucket(t *testing.T) {
	l, _ := frozen(&Config{
		Enabled:      true,
		DefaultLimit: 100, DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/sessions/*/report", Method: http.MethodPost, Limit: 2, Window: time.Hour, Burst: 2},
		},
	})
	defer l.Stop()

	a, _ := l.Allow("c", "/sessions/1/report", http.MethodPost)
	b, _ := l.Allow("c", "/sessions/2/report", http.MethodPost)
	c, info := l.Allow("c", "/sessions/3/report", http.MethodPost)
	assert.True(t, a)
	assert.True(t, b)
	assert.False(t, c)
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 1, l.Buckets())
}

func TestLimiter_ListsAndDisabled(t *testing.T) {
	l, _ := frozen(&Config{
		Enabled:      true,
		DefaultLimit: 1, DefaultWindow: time.Hour,
		Whitelist: map[string]bool{"good": true},
		Blacklist: map[string]bool{"bad": true},
	})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("good", "/x", http.MethodGet)
		assert.True(t, allowed)
	}
	allowed, _ := l.Allow("bad", "/x", http.MethodGet)
	assert.False(t, allowed)

	off := NewLimiter(&Config{Enabled: false})
	defer off.Stop()
	for i := 0; i < 5; i++ {
		allowed, _ := off.Allow("c", "/x", http.MethodGet)
		assert.True(t, allowed)
	}
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	l, _ := frozen(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour})
	defer l.Stop()
	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("c", "/health", http.MethodGet)
		assert.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	l, now := frozen(&Config{Enabled: true, DefaultLimit: 5, DefaultWindow: time.Minute, IdleTTL: time.Minute})
	defer l.Stop()

	l.Allow("a", "/x", http.MethodGet)
	*now = now.Add(2 * time.Minute)
	l.Allow("b", "/x", http.MethodGet)
	l.evictIdle()
	assert.Equal(t, 1, l.Buckets())
}

func TestLimiter_StopIdempotent(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute, CleanupInterval: time.Millisecond})
	l.Stop()
	l.Stop()
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()
	tests := []struct {
		path, method string
		wantPath     string
		wantNil      bool
	}{
		{"/sessions/abc/sections/aptitude/generate", http.MethodPost, "/sessions/*/sections/*/generate", false},
		{"/sessions/abc/interview/reply", http.MethodPost, "/sessions/*/interview/reply", false},
		{"/sessions", http.MethodPost, "/sessions", false},
		{"/sessions/abc/start", http.MethodPost, "/sessions/", false},
		{"/sessions/abc/sections/aptitude/answers/0", http.MethodPut, "/sessions/", false},
		{"/sessions/abc", http.MethodGet, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantPath, got.Path)
		})
	}
}
