package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy limits.
const (
	MaxBodySize = 1 << 20
	MaxTTL      = time.Hour
	DefaultTTL  = 5 * time.Minute
)

// PrivateCacheable is the request Cache-Control directive by which an
// authenticated client opts in to response caching.
const PrivateCacheable = "private-cacheable"

// PathTTL assigns a TTL to requests whose path starts with Prefix.
type PathTTL struct {
	Prefix string
	TTL    time.Duration
}

// DefaultPathTTLs returns one hour for static assets and localization
// bundles and five minutes for the dashboard.
func DefaultPathTTLs() []PathTTL {
	return []PathTTL{
		{Prefix: "/static/", TTL: time.Hour},
		{Prefix: "/localization/", TTL: time.Hour},
		{Prefix: "/dashboard", TTL: 5 * time.Minute},
	}
}

// Policy decides what is stored and for how long.
type Policy struct {
	PathTTLs   []PathTTL
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	MaxBody    int64
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() Policy {
	return Policy{
		PathTTLs:   DefaultPathTTLs(),
		DefaultTTL: DefaultTTL,
		MaxTTL:     MaxTTL,
		MaxBody:    MaxBodySize,
	}
}

// Directives parses a Cache-Control value into lowercase directive names
// and their arguments.
func Directives(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		out[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return out
}

var storableStatus = map[int]struct{}{
	http.StatusOK:               {},
	http.StatusMovedPermanently: {},
	http.StatusFound:            {},
	http.StatusNotModified:      {},
}

// Storable reports whether a response may be stored.
func (p Policy) Storable(status int, header http.Header, bodyLen int64) bool {
	if _, ok := storableStatus[status]; !ok {
		return false
	}
	if bodyLen > p.MaxBody {
		return false
	}
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > p.MaxBody {
			return false
		}
	}
	if len(header.Values("Set-Cookie")) > 0 {
		return false
	}
	d := Directives(header.Get("Cache-Control"))
	for _, name := range []string{"no-store", "no-cache", "private"} {
		if _, ok := d[name]; ok {
			return false
		}
	}
	return true
}

// TTL returns the lifetime for a response to path: its max-age capped at
// MaxTTL when present, otherwise the first matching path default. A zero
// result means the response must not be stored.
func (p Policy) TTL(path string, header http.Header) time.Duration {
	d := Directives(header.Get("Cache-Control"))
	if v, ok := d["max-age"]; ok {
		if secs, err := strconv.Atoi(v); err == nil {
			if secs <= 0 {
				return 0
			}
			return min(time.Duration(secs)*time.Second, p.MaxTTL)
		}
	}
	for _, pt := range p.PathTTLs {
		if strings.HasPrefix(path, pt.Prefix) {
			return pt.TTL
		}
	}
	return p.DefaultTTL
}
