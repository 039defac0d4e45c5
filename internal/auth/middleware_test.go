package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierFunc func(ctx context.Context, token string) (string, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	verifier := verifierFunc(func(_ context.Context, token string) (string, error) {
		if token == "good" {
			return "u-1", nil
		}
		return "", errors.New("bad token")
	})

	tests := []struct {
		name      string
		header    string
		wantUser  string
		wantKnown bool
	}{
		{name: "valid token", header: "Bearer good", wantUser: "u-1", wantKnown: true},
		{name: "invalid token stays anonymous", header: "Bearer bad"},
		{name: "no header stays anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotUser string
			var gotKnown bool
			handler := Middleware(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, gotKnown = ContextUser{}.UserID(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.wantKnown, gotKnown)
			assert.Equal(t, tt.wantUser, gotUser)
		})
	}
}

func TestMiddleware_NilVerifier(t *testing.T) {
	t.Parallel()

	called := false
	handler := Middleware(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestCurrentUserImplementations(t *testing.T) {
	t.Parallel()

	_, ok := Anonymous{}.UserID(context.Background())
	assert.False(t, ok)

	fn := CurrentUserFunc(func(context.Context) (string, bool) { return "u-9", true })
	id, ok := fn.UserID(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "u-9", id)
}
