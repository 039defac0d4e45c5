package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/notify"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		setEnv   bool
		expected string
	}{
		{name: "returns default when env not set", expected: "default-value"},
		{name: "returns env value when set", envValue: "env-value", setEnv: true, expected: "env-value"},
		{name: "returns default when env is empty string", setEnv: true, expected: "default-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "AVAFORUM_TEST_GETENV"
			if tt.setEnv {
				t.Setenv(key, tt.envValue)
			} else {
				t.Setenv(key, "")
				require.NoError(t, os.Unsetenv(key))
			}
			assert.Equal(t, tt.expected, getEnvOrDefault(key, "default-value"))
		})
	}
}

func TestLogConfig_FlagsOverrideFile(t *testing.T) {
	t.Parallel()

	base := observability.LogConfig{Level: "warn", Format: "json", Output: "stderr"}

	got := logConfig(cliFlags{logLevel: "debug"}, base)
	assert.Equal(t, observability.LogConfig{Level: "debug", Format: "json", Output: "stderr"}, got)

	got = logConfig(cliFlags{}, base)
	assert.Equal(t, base, got)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte("rateLimit:\n  perMinute: 5\n"), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("rateLimit:\n  perMinute: -1\n"), 0o600))

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		t.Parallel()
		cfg, resolved, err := loadConfig(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, resolved)
		assert.Equal(t, config.DefaultConfig(), cfg)
	})

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()
		cfg, resolved, err := loadConfig(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, resolved)
		assert.Equal(t, 5, cfg.RateLimit.PerMinute)
		assert.Equal(t, 1000, cfg.RateLimit.PerHour)
	})

	t.Run("invalid file", func(t *testing.T) {
		t.Parallel()
		_, _, err := loadConfig(invalid)
		assert.ErrorIs(t, err, util.ErrConfigInvalid)
	})
}

func TestBuildNotifier(t *testing.T) {
	t.Parallel()

	logger := observability.NopLogger()

	tests := []struct {
		name  string
		cfg   config.NotifyConfig
		check func(t *testing.T, n notify.Notifier)
	}{
		{
			name: "nothing configured",
			cfg:  config.NotifyConfig{},
			check: func(t *testing.T, n notify.Notifier) {
				assert.IsType(t, notify.Nop{}, n)
			},
		},
		{
			name: "log only",
			cfg:  config.NotifyConfig{Log: true},
			check: func(t *testing.T, n notify.Notifier) {
				assert.IsType(t, &notify.LogNotifier{}, n)
			},
		},
		{
			name: "log and webhook",
			cfg: config.NotifyConfig{
				Log:     true,
				Webhook: config.WebhookConfig{URL: "http://127.0.0.1:1/hook"},
			},
			check: func(t *testing.T, n notify.Notifier) {
				multi, ok := n.(notify.Multi)
				require.True(t, ok)
				assert.Len(t, multi, 2)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, err := buildNotifier(tt.cfg, logger, observability.NewMetrics("test"))
			require.NoError(t, err)
			tt.check(t, n)
		})
	}
}

func TestBuildVerifier(t *testing.T) {
	t.Parallel()

	v, err := buildVerifier(t.Context(), config.AuthConfig{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = buildVerifier(t.Context(), config.AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef"})
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func testApplication(t *testing.T) *application {
	t.Helper()
	return testApplicationWith(t, nil)
}

func testApplicationWith(t *testing.T, mutate func(*config.Config)) *application {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Notify.Log = false
	if mutate != nil {
		mutate(cfg)
	}

	app, err := initApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	_, err = startServer(app, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { shutdown(app, nil, observability.NopLogger()) })
	return app
}

func get(t *testing.T, app *application, path string) *http.Response {
	t.Helper()
	resp, err := http.Get("http://" + app.server.Addr().String() + path)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestApplication_ServesForum(t *testing.T) {
	t.Parallel()

	app := testApplication(t)
	base := "http://" + app.server.Addr().String()

	assert.Equal(t, http.StatusOK, get(t, app, "/health").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, app, "/ready").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, app, "/api/posts").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, app, "/metrics").StatusCode)

	resp, err := http.Post(base+"/api/posts", "application/json",
		strings.NewReader(`{"title":"hello","body":"world"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "anonymous users cannot post")
}

func TestApplyConfig_UpdatesRateLimits(t *testing.T) {
	t.Parallel()

	app := testApplication(t)

	reloaded := config.DefaultConfig()
	reloaded.RateLimit.PerMinute = 1
	reloaded.RateLimit.PerHour = 1
	reloaded.RateLimit.BypassPrefixes = []string{"/health"}
	applyConfig(app, reloaded, observability.NopLogger())

	assert.Equal(t, http.StatusOK, get(t, app, "/api/posts").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, get(t, app, "/api/posts").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, app, "/health").StatusCode)
}

func TestApplication_CacheChurnKeepsRateLimitCounters(t *testing.T) {
	t.Parallel()

	const perMinute = 5
	app := testApplicationWith(t, func(cfg *config.Config) {
		cfg.Store.MaxEntries = 8
		cfg.RateLimit.PerMinute = perMinute
		cfg.RateLimit.PerHour = 100
	})
	require.NotNil(t, app.counters)
	assert.NotSame(t, app.store, app.counters)

	// Each page leaves a response entry and a query entry in the shared
	// store, more than its LRU holds.
	for i := 1; i <= perMinute; i++ {
		require.Equal(t, http.StatusOK, get(t, app, fmt.Sprintf("/api/posts?page=%d", i)).StatusCode, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(t, app, "/api/posts?page=99").StatusCode)
}
