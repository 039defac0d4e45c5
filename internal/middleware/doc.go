// Package middleware provides the HTTP middleware at the transport edge.
//
// # Middleware Components
//
//   - RequestID: request identifier injection
//   - Recovery: panic recovery with stack trace logging
//   - Timing: X-Processing-Time response header
//   - AccessLog: one structured line per request
//   - RateLimiter: per-client minute and hour quotas
//   - ResponseCache: full-response caching of safe requests
//   - Client IP: trusted proxy-aware client IP extraction
//
// # Usage
//
// Middleware functions follow the standard Go pattern and are applied
// outermost first with Chain:
//
//	handler := middleware.Chain(mux,
//	    middleware.RequestID(),
//	    middleware.Recovery(logger),
//	    middleware.Timing(),
//	)
package middleware

import "net/http"

// Chain wraps h so that mws[0] is the outermost middleware.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
