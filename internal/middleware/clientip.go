package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// ClientIPExtractor resolves the client address of a request. Forwarding
// headers are honored only when the direct peer is a trusted proxy; with
// no trusted proxies configured only RemoteAddr is used.
type ClientIPExtractor struct {
	trustedCIDRs []*net.IPNet
}

// NewClientIPExtractor creates an extractor trusting the given CIDRs or
// single addresses. Invalid entries are skipped.
func NewClientIPExtractor(trustedProxies []string) *ClientIPExtractor {
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		if _, cidr, err := net.ParseCIDR(proxy); err == nil {
			cidrs = append(cidrs, cidr)
			continue
		}
		if ip := net.ParseIP(proxy); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128 //nolint:mnd // IPv6 prefix length
			}
			cidrs = append(cidrs, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return &ClientIPExtractor{trustedCIDRs: cidrs}
}

// Extract returns the client IP, or "" when none can be determined.
// Behind trusted proxies X-Forwarded-For is walked right to left and the
// first untrusted hop wins.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := hostOnly(r.RemoteAddr)
	if len(e.trustedCIDRs) == 0 || !e.trusted(remoteIP) {
		return remoteIP
	}

	hops := strings.Split(r.Header.Get(HeaderXForwardedFor), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !e.trusted(hop) {
			return hop
		}
	}
	return remoteIP
}

func (e *ClientIPExtractor) trusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, cidr := range e.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// ClientID identifies the caller for rate limiting: a digest of the
// X-API-Key header, else the client IP, else "unknown". The key itself
// never leaves this function, so it cannot reach logs or store keys.
func (e *ClientIPExtractor) ClientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderXAPIKey)); key != "" {
		return APIKeyID(key)
	}
	if ip := e.Extract(r); ip != "" {
		return ip
	}
	return unknownClient
}

// APIKeyID returns the stable, non-reversible identifier of an API key.
func APIKeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return apiKeyPrefix + hex.EncodeToString(sum[:8])
}
