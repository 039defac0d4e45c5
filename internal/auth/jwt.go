package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Token verification errors.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token has no subject")
)

const (
	bearerPrefix             = "Bearer "
	defaultJWKSRefreshPeriod = 15 * time.Minute
)

// Verifier verifies a raw token and returns its subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// VerifierOptions holds the claim checks applied to every token.
type VerifierOptions struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration

	// Clock overrides the time source used for exp/nbf checks.
	Clock func() time.Time
}

func (o VerifierOptions) parseOptions() []jwt.ParseOption {
	opts := []jwt.ParseOption{jwt.WithValidate(true)}
	if o.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(o.Issuer))
	}
	if o.Audience != "" {
		opts = append(opts, jwt.WithAudience(o.Audience))
	}
	if o.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(o.ClockSkew))
	}
	if o.Clock != nil {
		opts = append(opts, jwt.WithClock(jwt.ClockFunc(o.Clock)))
	}
	return opts
}

// JWTVerifier verifies signed JWTs with jwx.
type JWTVerifier struct {
	opts []jwt.ParseOption
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, o VerifierOptions) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret cannot be empty")
	}
	opts := append(o.parseOptions(), jwt.WithKey(jwa.HS256, secret))
	return &JWTVerifier{opts: opts}, nil
}

// NewJWKSVerifier verifies tokens against the key set published at jwksURL.
// The set is fetched once before returning and refreshed in the background
// for as long as ctx lives.
func NewJWKSVerifier(ctx context.Context, jwksURL string, o VerifierOptions) (*JWTVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(defaultJWKSRefreshPeriod)); err != nil {
		return nil, fmt.Errorf("failed to register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}

	opts := append(o.parseOptions(), jwt.WithKeySet(jwk.NewCachedSet(cache, jwksURL)))
	return &JWTVerifier{opts: opts}, nil
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	opts := append([]jwt.ParseOption{jwt.WithContext(ctx)}, v.opts...)
	parsed, err := jwt.ParseString(token, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if parsed.Subject() == "" {
		return "", ErrNoSubject
	}
	return parsed.Subject(), nil
}

// ExtractBearerToken extracts a bearer token from the Authorization header.
// The scheme is matched case-insensitively.
func ExtractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
