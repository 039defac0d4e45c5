package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signHMAC(t *testing.T, secret []byte, claims map[string]any) string {
	t.Helper()
	tok := jwt.New()
	for k, v := range claims {
		require.NoError(t, tok.Set(k, v))
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)
	return string(signed)
}

func TestHMACVerifier_Verify(t *testing.T) {
	t.Parallel()

	now := time.Now()
	verifier, err := NewHMACVerifier(testSecret, VerifierOptions{Issuer: "avaforum"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr error
	}{
		{
			name: "valid token",
			token: signHMAC(t, testSecret, map[string]any{
				jwt.SubjectKey:    "u-42",
				jwt.IssuerKey:     "avaforum",
				jwt.ExpirationKey: now.Add(time.Hour),
			}),
			wantSub: "u-42",
		},
		{
			name: "expired token",
			token: signHMAC(t, testSecret, map[string]any{
				jwt.SubjectKey:    "u-42",
				jwt.IssuerKey:     "avaforum",
				jwt.ExpirationKey: now.Add(-time.Hour),
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong issuer",
			token: signHMAC(t, testSecret, map[string]any{
				jwt.SubjectKey: "u-42",
				jwt.IssuerKey:  "someone-else",
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: signHMAC(t, []byte("another-secret-another-secret-xx"), map[string]any{
				jwt.SubjectKey: "u-42",
				jwt.IssuerKey:  "avaforum",
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "no subject",
			token:   signHMAC(t, testSecret, map[string]any{jwt.IssuerKey: "avaforum"}),
			wantErr: ErrNoSubject,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty",
			token:   "",
			wantErr: ErrMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub, err := verifier.Verify(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, sub)
		})
	}
}

func TestNewHMACVerifier_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewHMACVerifier(nil, VerifierOptions{})
	assert.Error(t, err)
}

func TestHMACVerifier_ClockSkew(t *testing.T) {
	t.Parallel()

	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	token := signHMAC(t, testSecret, map[string]any{
		jwt.SubjectKey:    "u-1",
		jwt.ExpirationKey: issued.Add(time.Minute),
	})

	verifier, err := NewHMACVerifier(testSecret, VerifierOptions{
		ClockSkew: 30 * time.Second,
		Clock:     func() time.Time { return issued.Add(80 * time.Second) },
	})
	require.NoError(t, err)

	sub, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sub)
}

func TestJWKSVerifier_Verify(t *testing.T) {
	t.Parallel()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	private, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, private.Set(jwk.KeyIDKey, "kid-1"))
	require.NoError(t, private.Set(jwk.AlgorithmKey, jwa.RS256))

	public, err := jwk.PublicKeyOf(private)
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	verifier, err := NewJWKSVerifier(ctx, srv.URL, VerifierOptions{})
	require.NoError(t, err)

	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.SubjectKey, "u-7"))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, private))
	require.NoError(t, err)

	sub, err := verifier.Verify(ctx, string(signed))
	require.NoError(t, err)
	assert.Equal(t, "u-7", sub)
}

func TestNewJWKSVerifier_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewJWKSVerifier(context.Background(), srv.URL, VerifierOptions{})
	assert.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "Basic dXNlcjpwYXNz", want: ""},
		{header: "Bear", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractBearerToken(r))
		})
	}
}
