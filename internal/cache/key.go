package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// KeyPrefix starts every response cache key.
const KeyPrefix = "resp:"

// scopeSegments is how many leading path segments form a resource scope.
const scopeSegments = 2

// Key derives the cache key for r. userID is empty for anonymous requests.
// Keys have the form resp:<scope>:<digest> so every entry under one
// resource can be evicted with ScopePattern.
func Key(r *http.Request, userID string) string {
	h := sha256.New()
	for _, part := range []string{
		r.Method,
		r.URL.Path,
		r.URL.RawQuery,
		userID,
		NormalizeLanguage(r.Header.Get("Accept-Language")),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return scopePrefix(r.URL.Path) + hex.EncodeToString(h.Sum(nil))
}

// Scope returns the resource a path belongs to: its first two segments,
// so /api/posts/42 and /api/posts?page=2 share the scope /api/posts.
func Scope(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) > scopeSegments {
		segments = segments[:scopeSegments]
	}
	return "/" + strings.Join(segments, "/")
}

// ScopePattern matches every key stored for the resource path belongs to.
func ScopePattern(path string) string {
	return scopePrefix(path) + "*"
}

func scopePrefix(path string) string {
	sum := sha256.Sum256([]byte(Scope(path)))
	return KeyPrefix + hex.EncodeToString(sum[:8]) + ":"
}

// NormalizeLanguage canonicalizes an Accept-Language value so equivalent
// headers map to the same key. Unparseable values are lowercased and
// trimmed.
func NormalizeLanguage(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	tags, weights, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return strings.ToLower(header)
	}

	var sb strings.Builder
	for i, tag := range tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(tag.String())
		if weights[i] < 1 {
			sb.WriteString(";q=")
			sb.WriteString(strconv.FormatFloat(float64(weights[i]), 'f', -1, 32))
		}
	}
	return sb.String()
}
