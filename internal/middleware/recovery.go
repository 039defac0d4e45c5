package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Recovery returns a middleware that turns panics into 500 responses.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					stack := debug.Stack()

					logger.WithContext(r.Context()).Error("panic recovered",
						observability.String("path", r.URL.Path),
						observability.String("method", r.Method),
						observability.Any("error", rec),
						observability.String("stack", string(stack)),
					)

					GetMetrics().panicsRecovered.Inc()

					requestID := observability.RequestIDFromContext(r.Context())
					util.WriteError(w, requestID, util.NewPanicError(rec, stack))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
