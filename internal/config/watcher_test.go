package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
	errs []error
}

func (r *reloads) onConfig(c *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, c)
}

func (r *reloads) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *reloads) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs), len(r.errs)
}

func TestWatcher_ReloadsRateLimits(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avaforum.yaml")
	writeConfig(t, path, "rateLimit:\n  perMinute: 60\n")

	var r reloads
	w, err := NewWatcher(path, r.onConfig, WithDebounceDelay(10*time.Millisecond), WithErrorCallback(r.onError))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })
	assert.Equal(t, 60, w.LastConfig().RateLimit.PerMinute)

	writeConfig(t, path, "rateLimit:\n  perMinute: 10\n  bypassPrefixes: [/ping]\n")

	require.Eventually(t, func() bool {
		n, _ := r.counts()
		return n > 0
	}, 5*time.Second, 10*time.Millisecond)

	last := w.LastConfig()
	assert.Equal(t, 10, last.RateLimit.PerMinute)
	assert.Equal(t, []string{"/ping"}, last.RateLimit.BypassPrefixes)
}

func TestWatcher_RejectsInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avaforum.yaml")
	writeConfig(t, path, "rateLimit:\n  perMinute: 60\n")

	var r reloads
	w, err := NewWatcher(path, r.onConfig, WithErrorCallback(r.onError))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	writeConfig(t, path, "rateLimit:\n  perMinute: -5\n")
	assert.Error(t, w.ForceReload())

	cfgs, errs := r.counts()
	assert.Zero(t, cfgs)
	assert.Positive(t, errs)
	assert.Equal(t, 60, w.LastConfig().RateLimit.PerMinute)
}

func TestWatcher_StartFailsOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avaforum.yaml")
	writeConfig(t, path, "server:\n  address: \"\"\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}
