package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/ratelimit"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// DefaultBypassPrefixes are the paths never counted against a quota.
func DefaultBypassPrefixes() []string {
	return []string{
		"/health",
		"/healthz",
		"/ready",
		"/static/",
		"/favicon.ico",
		"/localization/",
		"/metrics",
	}
}

// RateLimiter applies a ratelimit.Limiter at the HTTP edge.
type RateLimiter struct {
	limiter   ratelimit.Limiter
	extractor *ClientIPExtractor
	bypass    atomic.Pointer[[]string]
	logger    observability.Logger
}

// RateLimiterOption is a functional option for configuring the rate limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithClientIPExtractor sets how client addresses are resolved.
func WithClientIPExtractor(e *ClientIPExtractor) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.extractor = e
	}
}

// WithBypassPrefixes replaces the default bypass prefixes.
func WithBypassPrefixes(prefixes []string) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.SetBypassPrefixes(prefixes)
	}
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(limiter ratelimit.Limiter, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiter:   limiter,
		extractor: NewClientIPExtractor(nil),
		logger:    observability.NopLogger(),
	}
	rl.SetBypassPrefixes(DefaultBypassPrefixes())
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// SetBypassPrefixes replaces the bypass prefixes. Safe to call while
// serving.
func (rl *RateLimiter) SetBypassPrefixes(prefixes []string) {
	p := slices.Clone(prefixes)
	rl.bypass.Store(&p)
}

// SetLimits replaces the caps of the underlying limiter.
func (rl *RateLimiter) SetLimits(l ratelimit.Limits) {
	rl.limiter.SetLimits(l)
}

func (rl *RateLimiter) bypassed(path string) bool {
	for _, prefix := range *rl.bypass.Load() {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware returns the rate limiting middleware. Limiter failures let the
// request through.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	metrics := GetMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.bypassed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			clientID := rl.extractor.ClientID(r)
			res, err := rl.limiter.Allow(r.Context(), clientID)
			if err != nil {
				metrics.rateLimitErrors.Inc()
				rl.logger.WithContext(r.Context()).Warn("rate limit check failed, allowing request",
					observability.String("client_id", clientID),
					observability.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderXRateLimitLimit, strconv.Itoa(res.Limit))
			if !res.Allowed {
				metrics.rateLimitRejected.WithLabelValues(res.Window).Inc()
				rl.logger.WithContext(r.Context()).Warn("rate limit exceeded",
					observability.String("client_id", clientID),
					observability.String("window", res.Window),
					observability.String("path", r.URL.Path),
				)
				w.Header().Set(HeaderXRateLimitRemaining, "0")
				util.WriteError(w, observability.RequestIDFromContext(r.Context()),
					util.NewRateLimitError(res.Limit, res.Window, res.RetryAfter))
				return
			}

			metrics.rateLimitAllowed.Inc()
			if res.Remaining >= 0 {
				w.Header().Set(HeaderXRateLimitRemaining, strconv.Itoa(res.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}
