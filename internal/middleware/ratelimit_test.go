package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/ratelimit"
	"github.com/vyrodovalexey/avaforum/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T, clock *testClock) *store.MemoryStore {
	t.Helper()
	s, err := store.NewMemoryStore(1000, observability.NopLogger(), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestRateLimiter_SixtyPerMinute(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2024, 5, 1, 10, 15, 5, 0, time.UTC)}
	limiter := ratelimit.NewCalendarLimiter(newStore(t, clock), ratelimit.DefaultLimits(), ratelimit.WithClock(clock.Now))
	handler := NewRateLimiter(limiter).Middleware()(okHandler)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/posts", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 1; i <= 60; i++ {
		rec := send()
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "60", rec.Header().Get(HeaderXRateLimitLimit))
		assert.Equal(t, strconv.Itoa(60-i), rec.Header().Get(HeaderXRateLimitRemaining))
	}

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "60", rec.Header().Get(HeaderXRateLimitLimit))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	clock.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, send().Code)
}

func TestRateLimiter_HourCapHeader(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewCalendarLimiter(newStore(t, clock),
		ratelimit.Limits{PerMinute: 10, PerHour: 2}, ratelimit.WithClock(clock.Now))
	handler := NewRateLimiter(limiter).Middleware()(okHandler)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/posts", nil)
		req.Header.Set(HeaderXAPIKey, "key-1")
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "2", last.Header().Get(HeaderXRateLimitLimit))
}

func TestRateLimiter_Bypass(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewCalendarLimiter(newStore(t, clock),
		ratelimit.Limits{PerMinute: 1, PerHour: 1}, ratelimit.WithClock(clock.Now))
	rl := NewRateLimiter(limiter)
	handler := rl.Middleware()(okHandler)

	for _, path := range []string{"/health", "/healthz", "/ready", "/static/app.css", "/favicon.ico", "/localization/en.json", "/metrics"} {
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code, path)
			assert.Empty(t, rec.Header().Get(HeaderXRateLimitLimit), path)
		}
	}

	rl.SetBypassPrefixes([]string{"/api/"})
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "replaced prefixes no longer bypass")
}

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return nil, errors.New("store down")
}
func (erroringLimiter) SetLimits(ratelimit.Limits) {}
func (erroringLimiter) Limits() ratelimit.Limits   { return ratelimit.Limits{} }

func TestRateLimiter_FailsOpen(t *testing.T) {
	t.Parallel()

	handler := NewRateLimiter(erroringLimiter{}).Middleware()(okHandler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIPExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		apiKey  string
		wantIP  string
		wantID  string
	}{
		{name: "remote only", remote: "198.51.100.1:1234", xff: "1.2.3.4", wantIP: "198.51.100.1", wantID: "198.51.100.1"},
		{name: "trusted proxy", trusted: []string{"10.0.0.0/8"}, remote: "10.0.0.5:80", xff: "1.2.3.4, 10.0.0.9", wantIP: "1.2.3.4", wantID: "1.2.3.4"},
		{name: "untrusted peer ignores header", trusted: []string{"10.0.0.1"}, remote: "10.0.0.2:80", xff: "1.2.3.4", wantIP: "10.0.0.2", wantID: "10.0.0.2"},
		{name: "api key wins", remote: "198.51.100.1:1234", apiKey: "k-1", wantIP: "198.51.100.1", wantID: APIKeyID("k-1")},
		{name: "api key trimmed", remote: "198.51.100.1:1234", apiKey: " k-1 ", wantIP: "198.51.100.1", wantID: APIKeyID("k-1")},
		{name: "unknown", remote: "", wantIP: "", wantID: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewClientIPExtractor(tt.trusted)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set(HeaderXForwardedFor, tt.xff)
			}
			if tt.apiKey != "" {
				req.Header.Set(HeaderXAPIKey, tt.apiKey)
			}
			assert.Equal(t, tt.wantIP, e.Extract(req))
			assert.Equal(t, tt.wantID, e.ClientID(req))
		})
	}
}

func TestAPIKeyID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{name: "short", key: "k-1"},
		{name: "secret", key: "sk_live_9f8e7d6c5b4a"},
		{name: "unicode", key: "ключ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id := APIKeyID(tt.key)
			assert.Regexp(t, `^key:[0-9a-f]{16}$`, id)
			assert.NotContains(t, id, tt.key)
			assert.Equal(t, id, APIKeyID(tt.key))
			assert.NotEqual(t, id, APIKeyID(tt.key+"x"))
		})
	}
}

func TestRateLimiter_APIKeyNeverLogged(t *testing.T) {
	t.Parallel()

	const secret = "sk_live_9f8e7d6c5b4a"

	tests := []struct {
		name    string
		limiter func(t *testing.T) ratelimit.Limiter
		wantLog string
	}{
		{
			name:    "limiter failure",
			limiter: func(*testing.T) ratelimit.Limiter { return erroringLimiter{} },
			wantLog: "rate limit check failed",
		},
		{
			name: "rejected",
			limiter: func(t *testing.T) ratelimit.Limiter {
				clock := &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
				return ratelimit.NewCalendarLimiter(newStore(t, clock),
					ratelimit.Limits{PerMinute: 1, PerHour: 10}, ratelimit.WithClock(clock.Now))
			},
			wantLog: "rate limit exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger, err := observability.NewLoggerWithWriter(observability.LogConfig{}, &buf)
			require.NoError(t, err)
			handler := NewRateLimiter(tt.limiter(t), WithRateLimiterLogger(logger)).Middleware()(okHandler)

			for i := 0; i < 2; i++ {
				req := httptest.NewRequest(http.MethodGet, "/posts", nil)
				req.Header.Set(HeaderXAPIKey, secret)
				handler.ServeHTTP(httptest.NewRecorder(), req)
			}
			_ = logger.Sync()

			out := buf.String()
			assert.Contains(t, out, tt.wantLog)
			assert.Contains(t, out, APIKeyID(secret))
			assert.NotContains(t, out, secret)
		})
	}
}

func TestDefaultBypassPrefixes(t *testing.T) {
	t.Parallel()

	prefixes := DefaultBypassPrefixes()
	assert.Contains(t, prefixes, "/metrics")
	for _, p := range prefixes {
		assert.True(t, strings.HasPrefix(p, "/"))
	}
}
