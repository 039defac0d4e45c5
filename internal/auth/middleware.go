package auth

import (
	"net/http"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Middleware verifies the bearer token, when present, and stores its subject
// as the current user. Requests without a valid token continue anonymously.
func Middleware(verifier Verifier, logger observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.WithContext(r.Context()).Debug("bearer token rejected, continuing anonymously",
					observability.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(util.ContextWithUserID(r.Context(), userID)))
		})
	}
}
