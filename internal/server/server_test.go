package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/forum"
	"github.com/vyrodovalexey/avaforum/internal/health"
	"github.com/vyrodovalexey/avaforum/internal/middleware"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/ratelimit"
	"github.com/vyrodovalexey/avaforum/internal/store"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// tokenVerifier accepts "Bearer <user>" and authenticates as that user.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", util.ErrUnauthorized
	}
	return token, nil
}

func newTestServer(t *testing.T, perMinute int) *Server {
	t.Helper()

	s, err := store.NewMemoryStore(1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exec := pipeline.NewExecutor(pipeline.WithStore(s))
	t.Cleanup(func() { _ = exec.Close(context.Background()) })
	d := pipeline.NewDispatcher()
	require.NoError(t, forum.Register(d, exec, forum.NewService(forum.NewMemoryRepository(), nil)))

	fixed := time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)
	limiter := ratelimit.NewCalendarLimiter(s, ratelimit.Limits{PerMinute: perMinute, PerHour: 1000},
		ratelimit.WithClock(func() time.Time { return fixed }))

	h := health.NewHandler("test", nil)
	h.AddCheck(health.StoreCheck(s))

	cfg := config.DefaultConfig().Server
	cfg.Address = "127.0.0.1:0"

	return New(cfg, Deps{
		Metrics:       observability.NewMetrics("test"),
		Health:        h,
		Aggregator:    exec.Aggregator(),
		Verifier:      tokenVerifier{},
		RateLimiter:   middleware.NewRateLimiter(limiter),
		ResponseCache: middleware.NewResponseCache(s),
		Routes:        func(r gin.IRouter) { forum.RegisterRoutes(r, d) },
	})
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "198.51.100.7:5555"
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_EdgeHeaders(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 100)
	rec := serve(srv, http.MethodGet, "/api/posts")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderXRequestID))
	assert.Regexp(t, `^\d+ms$`, rec.Header().Get(middleware.HeaderXProcessingTime))
	assert.Equal(t, "100", rec.Header().Get(middleware.HeaderXRateLimitLimit))
	assert.Equal(t, "MISS", rec.Header().Get(middleware.HeaderXCache))

	rec = serve(srv, http.MethodGet, "/api/posts")
	assert.Equal(t, "HIT", rec.Header().Get(middleware.HeaderXCache))
}

func TestServer_CreatedPostVisibleInCachedList(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 100)
	listTotal := func() (int, string) {
		rec := serve(srv, http.MethodGet, "/api/posts")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page forum.Page
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		return page.Total, rec.Header().Get(middleware.HeaderXCache)
	}

	total, cacheState := listTotal()
	require.Equal(t, 0, total)
	require.Equal(t, "MISS", cacheState)
	_, cacheState = listTotal()
	require.Equal(t, "HIT", cacheState)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/posts",
		strings.NewReader(`{"title":"Hello forum","body":"first post"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer alice")
	req.RemoteAddr = "198.51.100.7:5555"
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	total, cacheState = listTotal()
	assert.Equal(t, 1, total)
	assert.Equal(t, "MISS", cacheState)
}

func TestServer_RateLimitSparesHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, serve(srv, http.MethodGet, fmt.Sprintf("/api/posts?page=%d", i+1)).Code)
	}

	rec := serve(srv, http.MethodGet, "/api/posts?page=9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(middleware.HeaderRetryAfter))

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, path).Code, path)
	}
}

func TestServer_ErrorsCarryRequestID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 100)
	rec := serve(srv, http.MethodGet, "/nowhere")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body util.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rec.Header().Get(middleware.HeaderXRequestID), body.RequestID)
	assert.Equal(t, "not_found", body.Error)
}

func TestServer_RequestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 100)
	serve(srv, http.MethodGet, "/api/posts")

	rec := serve(srv, http.MethodGet, RequestMetricsPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "forum.ListPostsQuery")
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 100)
	require.NoError(t, srv.Listen())
	addr := srv.Addr().String()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-errCh)
	assert.NoError(t, srv.Stop(ctx))
}
