package gateway

import (
	"net/http"
	"strings"
)

// HeaderPolicy derives upstream request headers from the caller's headers.
//
// The outbound set contains only:
//   - every inbound header whose name starts with PassthroughPrefix (any case)
//   - Anthropic-Version, defaulted when the caller sent none
//   - X-Api-Key with the selected secret
//   - Content-Type: application/json
//
// Caller credentials (Authorization, X-Api-Key) are never forwarded.
type HeaderPolicy struct {
	DefaultVersion string
}

// Outbound returns a new header set; inbound is not modified.
func (p HeaderPolicy) Outbound(inbound http.Header, secret string) http.Header {
	out := make(http.Header, 8)
	for name, values := range inbound {
		if !hasPrefixFold(name, PassthroughPrefix) {
			continue
		}
		key := http.CanonicalHeaderKey(name)
		out[key] = append(out[key], values...)
	}
	if out.Get(HeaderVersion) == "" && p.DefaultVersion != "" {
		out.Set(HeaderVersion, p.DefaultVersion)
	}
	out.Set(HeaderAPIKey, secret)
	out.Set("Content-Type", "application/json")
	return out
}

// copyResponseHeaders copies the upstream headers a client may rely on:
// content type, request id, retry hints and provider headers.
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		switch {
		case hasPrefixFold(name, PassthroughPrefix),
			strings.EqualFold(name, "Content-Type"),
			strings.EqualFold(name, HeaderRequestID),
			strings.EqualFold(name, "Retry-After"),
			strings.EqualFold(name, "X-Should-Retry"):
			dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
}

// setSSEHeaders prepares a response for event streaming.
func setSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
