package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/auth"
	"github.com/vyrodovalexey/avaforum/internal/cache"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/store"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// ResponseCache caches complete responses to safe requests in a store.
type ResponseCache struct {
	store       store.Store
	policy      cache.Policy
	currentUser auth.CurrentUser
	logger      observability.Logger
	now         func() time.Time
}

// ResponseCacheOption configures a ResponseCache.
type ResponseCacheOption func(*ResponseCache)

// WithCachePolicy overrides the storage policy.
func WithCachePolicy(p cache.Policy) ResponseCacheOption {
	return func(rc *ResponseCache) {
		rc.policy = p
	}
}

// WithCacheCurrentUser sets the current-user accessor.
func WithCacheCurrentUser(u auth.CurrentUser) ResponseCacheOption {
	return func(rc *ResponseCache) {
		rc.currentUser = u
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger observability.Logger) ResponseCacheOption {
	return func(rc *ResponseCache) {
		rc.logger = logger
	}
}

// WithCacheClock overrides the clock used for Age and expiry.
func WithCacheClock(now func() time.Time) ResponseCacheOption {
	return func(rc *ResponseCache) {
		rc.now = now
	}
}

// NewResponseCache creates a ResponseCache over s.
func NewResponseCache(s store.Store, opts ...ResponseCacheOption) *ResponseCache {
	rc := &ResponseCache{
		store:       s,
		policy:      cache.DefaultPolicy(),
		currentUser: auth.ContextUser{},
		logger:      observability.NopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Middleware returns the caching middleware. Only GET and HEAD requests
// are served from cache. Authenticated requests are cached per user and
// only when the client sends the private-cacheable directive. A successful
// unsafe request evicts every cached response of its resource scope.
func (rc *ResponseCache) Middleware() func(http.Handler) http.Handler {
	metrics := GetMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead:
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				rc.serveAndInvalidate(w, r, next)
				return
			default:
				next.ServeHTTP(w, r)
				return
			}

			directives := cache.Directives(r.Header.Get(HeaderCacheControl))
			userID, authenticated := rc.currentUser.UserID(r.Context())
			if authenticated {
				if _, optIn := directives[cache.PrivateCacheable]; !optIn {
					metrics.cacheRequests.WithLabelValues("skip").Inc()
					next.ServeHTTP(w, r)
					return
				}
			} else {
				userID = ""
			}

			_, noStore := directives["no-store"]
			_, noCache := directives["no-cache"]
			key := cache.Key(r, userID)

			if !noStore && !noCache && rc.serveCached(w, r, key) {
				metrics.cacheRequests.WithLabelValues("hit").Inc()
				return
			}
			metrics.cacheRequests.WithLabelValues("miss").Inc()

			w.Header().Set(HeaderXCache, cacheMiss)
			if noStore {
				next.ServeHTTP(w, r)
				return
			}
			rc.captureAndStore(w, r, next, key)
		})
	}
}

func (rc *ResponseCache) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	ctx := r.Context()
	logger := rc.logger.WithContext(ctx)

	data, err := rc.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Debug("response cache read failed", observability.String("key", key), observability.Error(err))
		}
		return false
	}

	entry, err := cache.UnmarshalEntry(data)
	if err != nil {
		logger.Debug("response cache entry undecodable, treating as miss", observability.String("key", key))
		return false
	}

	now := rc.now()
	if entry.Expired(now) {
		if err := rc.store.Remove(ctx, key); err != nil {
			logger.Debug("failed to remove expired response", observability.String("key", key), observability.Error(err))
		}
		return false
	}

	for k, vals := range entry.Headers {
		w.Header()[k] = vals
	}
	w.Header().Set(HeaderAge, strconv.Itoa(entry.Age(now)))
	w.Header().Set(HeaderXCache, cacheHit)
	w.WriteHeader(entry.StatusCode)
	if r.Method != http.MethodHead {
		_, _ = w.Write(entry.Body)
	}

	logger.Debug("response cache hit",
		observability.String("key", key),
		observability.String("path", r.URL.Path),
	)
	return true
}

// serveAndInvalidate runs an unsafe request and, when it succeeds, removes
// the cached responses it may have made stale.
func (rc *ResponseCache) serveAndInvalidate(w http.ResponseWriter, r *http.Request, next http.Handler) {
	sw := util.NewStatusCapturingResponseWriter(w)
	next.ServeHTTP(sw, r)
	if sw.StatusCode >= http.StatusBadRequest {
		return
	}

	logger := rc.logger.WithContext(r.Context())
	remover, ok := rc.store.(store.PatternRemover)
	if !ok {
		logger.Debug("store cannot remove by pattern, cached responses left to expire",
			observability.String("path", r.URL.Path),
		)
		return
	}
	pattern := cache.ScopePattern(r.URL.Path)
	removed, err := remover.RemovePattern(context.WithoutCancel(r.Context()), pattern)
	if err != nil {
		logger.Warn("failed to evict cached responses",
			observability.String("scope", cache.Scope(r.URL.Path)),
			observability.Error(err),
		)
		return
	}
	GetMetrics().cacheRequests.WithLabelValues("evict").Add(float64(removed))
	logger.Debug("cached responses evicted",
		observability.String("scope", cache.Scope(r.URL.Path)),
		observability.Int("removed", removed),
	)
}

func (rc *ResponseCache) captureAndStore(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	recorder := &cacheResponseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		limit:          rc.policy.MaxBody,
	}
	outer := w.Header().Clone()

	next.ServeHTTP(recorder, r)

	logger := rc.logger.WithContext(r.Context())
	if recorder.overflow {
		logger.Debug("response exceeds cacheable size, not stored",
			observability.String("key", key),
			observability.String("path", r.URL.Path),
		)
		return
	}
	header := handlerHeaders(outer, recorder.Header())
	if !rc.policy.Storable(recorder.statusCode, header, int64(recorder.body.Len())) {
		return
	}
	ttl := rc.policy.TTL(r.URL.Path, header)
	if ttl <= 0 {
		return
	}

	entry := cache.NewEntry(recorder.statusCode, header, recorder.body.Bytes(), rc.now(), ttl)
	data, err := entry.Marshal()
	if err != nil {
		return
	}
	if err := rc.store.Set(r.Context(), key, data, ttl); err != nil {
		logger.Debug("failed to store response",
			observability.String("key", key),
			observability.Error(err),
		)
		return
	}
	logger.Debug("response cached",
		observability.String("key", key),
		observability.String("path", r.URL.Path),
		observability.Duration("ttl", ttl),
	)
}

// handlerHeaders returns the headers of after that the handler set or
// changed, leaving out those already written by outer middleware.
func handlerHeaders(before, after http.Header) http.Header {
	out := make(http.Header, len(after))
	for k, v := range after {
		if prev, ok := before[k]; ok && slices.Equal(prev, v) {
			continue
		}
		out[k] = v
	}
	return out
}

// cacheResponseRecorder forwards the response to the client while keeping a
// copy of the body up to limit bytes.
type cacheResponseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          bytes.Buffer
	limit         int64
	headerWritten bool
	overflow      bool
}

// WriteHeader forwards the status once.
func (r *cacheResponseRecorder) WriteHeader(code int) {
	if !r.headerWritten {
		r.statusCode = code
		r.headerWritten = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write copies b into the buffer until the limit is passed and always
// forwards it.
func (r *cacheResponseRecorder) Write(b []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	if !r.overflow {
		if int64(r.body.Len())+int64(len(b)) > r.limit {
			r.overflow = true
			r.body = bytes.Buffer{}
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (r *cacheResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
