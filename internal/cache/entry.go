package cache

import (
	"encoding/json"
	"net/http"
	"time"
)

// Entry is a stored HTTP response.
type Entry struct {
	StatusCode int                 `json:"statusCode"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	CreatedAt  time.Time           `json:"createdAt"`
	ExpiresAt  time.Time           `json:"expiresAt"`
}

// NewEntry captures a response created at now and valid for ttl.
func NewEntry(status int, header http.Header, body []byte, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		StatusCode: status,
		Headers:    cloneHeaders(header),
		Body:       body,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// Expired reports whether the entry must no longer be served at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Age returns the whole seconds elapsed since the entry was created.
func (e *Entry) Age(now time.Time) int {
	age := now.Sub(e.CreatedAt)
	if age < 0 {
		return 0
	}
	return int(age / time.Second)
}

// Marshal encodes the entry for the store.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry decodes a stored entry.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// hopHeaders are never replayed from cache. Rate-limit headers describe
// the current request's quota and are set fresh on every response.
var hopHeaders = map[string]struct{}{
	"Connection":            {},
	"Keep-Alive":            {},
	"Transfer-Encoding":     {},
	"Upgrade":               {},
	"Date":                  {},
	"X-Request-Id":          {},
	"X-Processing-Time":     {},
	"X-Cache":               {},
	"Age":                   {},
	"X-Ratelimit-Limit":     {},
	"X-Ratelimit-Remaining": {},
	"Retry-After":           {},
}

func cloneHeaders(h http.Header) map[string][]string {
	clone := make(map[string][]string, len(h))
	for k, v := range h {
		if _, skip := hopHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		vc := make([]string, len(v))
		copy(vc, v)
		clone[k] = vc
	}
	return clone
}
