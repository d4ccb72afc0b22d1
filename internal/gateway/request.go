package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/compresr/messages-gateway/internal/config"
)

// readBody buffers the whole request body, bounded by MaxRequestBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	return io.ReadAll(r.Body)
}

// isStreamingRequest peeks the boolean "stream" field. Anything else,
// including malformed JSON, means non-streaming.
func isStreamingRequest(body []byte) bool {
	if !bytes.Contains(body, []byte(`"stream"`)) || !gjson.ValidBytes(body) {
		return false
	}
	return gjson.GetBytes(body, "stream").Type == gjson.True
}

// correlationID returns the trace id of a valid traceparent header, or a
// new UUID.
func correlationID(r *http.Request) string {
	if id, ok := traceIDFromParent(r.Header.Get(HeaderTraceParent)); ok {
		return id
	}
	return uuid.NewString()
}

// traceIDFromParent parses "version-traceid-parentid-flags".
func traceIDFromParent(tp string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(tp), "-")
	if len(parts) < 4 {
		return "", false
	}
	version, traceID, parentID := parts[0], parts[1], parts[2]
	if len(version) != 2 || version == "ff" || !isLowerHex(version) {
		return "", false
	}
	if len(traceID) != 32 || !isLowerHex(traceID) || strings.Trim(traceID, "0") == "" {
		return "", false
	}
	if len(parentID) != 16 || !isLowerHex(parentID) {
		return "", false
	}
	return traceID, true
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// upstreamURL joins the configured base URL with path and query.
func (g *Gateway) upstreamURL(path, rawQuery string) string {
	u := strings.TrimSuffix(g.baseURL, "/") + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// newUpstreamRequest builds the outbound request for path.
func (g *Gateway) newUpstreamRequest(ctx context.Context, path string, req *proxyRequest) (*http.Request, error) {
	upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.upstreamURL(path, req.rawQuery), bytes.NewReader(req.body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	upReq.Header = g.headers.Outbound(req.inbound, req.secret)
	if req.stream {
		upReq.Header.Set("Accept", "text/event-stream")
	}
	return upReq, nil
}

// bodyReadStatus maps a request body read failure to a response.
func bodyReadStatus(err error) (int, string, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, ErrorKindTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return http.StatusBadRequest, ErrorKindInvalidRequest, "failed to read request body: " + err.Error()
}
