package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderPolicy_Outbound(t *testing.T) {
	p := HeaderPolicy{DefaultVersion: "2023-06-01"}

	t.Run("strips caller credentials", func(t *testing.T) {
		in := http.Header{}
		in.Set("Authorization", "Bearer caller")
		in.Add("X-Api-Key", "caller-1")
		in.Add("X-Api-Key", "caller-2")
		in.Set("Cookie", "a=b")

		out := p.Outbound(in, "sk-selected")

		assert.Empty(t, out.Get("Authorization"))
		assert.Empty(t, out.Get("Cookie"))
		assert.Equal(t, []string{"sk-selected"}, out.Values(HeaderAPIKey))
		assert.Equal(t, "application/json", out.Get("Content-Type"))
		assert.Equal(t, []string{"caller-1", "caller-2"}, in.Values("X-Api-Key"), "inbound is untouched")
	})

	t.Run("passes provider headers in any case", func(t *testing.T) {
		in := http.Header{
			"anthropic-beta":   {"a", "b"},
			"ANTHROPIC-FOO":    {"x"},
			"Anthropic-Custom": {"y"},
		}
		out := p.Outbound(in, "k")

		assert.Equal(t, []string{"a", "b"}, out.Values("Anthropic-Beta"))
		assert.Equal(t, "x", out.Get("Anthropic-Foo"))
		assert.Equal(t, "y", out.Get("Anthropic-Custom"))
	})

	t.Run("version defaults only when absent", func(t *testing.T) {
		assert.Equal(t, "2023-06-01", p.Outbound(http.Header{}, "k").Get(HeaderVersion))

		in := http.Header{}
		in.Set("anthropic-version", "2024-01-01")
		out := p.Outbound(in, "k")
		assert.Equal(t, []string{"2024-01-01"}, out.Values(HeaderVersion))
	})
}

func TestCopyResponseHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Set("Request-Id", "req_1")
	src.Set("Retry-After", "10")
	src.Set("X-Should-Retry", "true")
	src.Set("Anthropic-Ratelimit-Tokens-Remaining", "5")
	src.Set("Content-Length", "99")
	src.Set("Set-Cookie", "s=1")

	dst := http.Header{}
	copyResponseHeaders(dst, src)

	assert.Equal(t, "req_1", dst.Get("Request-Id"))
	assert.Equal(t, "10", dst.Get("Retry-After"))
	assert.Equal(t, "true", dst.Get("X-Should-Retry"))
	assert.Equal(t, "5", dst.Get("Anthropic-Ratelimit-Tokens-Remaining"))
	assert.Empty(t, dst.Get("Content-Length"))
	assert.Empty(t, dst.Get("Set-Cookie"))
}

func TestErrorEnvelope(t *testing.T) {
	assert.Equal(t,
		`{"type":"error","error":{"type":"api_error","message":"upstream \"x\" failed"}}`,
		string(errorEnvelope(ErrorKindAPI, `upstream "x" failed`)))

	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadGateway, ErrorKindAPI, "boom")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, rec.Body.String())
}

func TestIsStreamingRequest(t *testing.T) {
	tests := map[string]bool{
		`{"stream":true}`:                true,
		`{"model":"m","stream": true}`:   true,
		`{"stream":false}`:               false,
		`{"stream":"true"}`:              false,
		`{"stream":1}`:                   false,
		`{"model":"m"}`:                  false,
		`{"stream":tru`:                  false,
		``:                               false,
		`{"messages":[{"stream":true}]}`: false,
		`{"metadata":{"stream":true}}`:   false,
	}
	for body, want := range tests {
		assert.Equal(t, want, isStreamingRequest([]byte(body)), body)
	}
}

func TestTraceIDFromParent(t *testing.T) {
	id, ok := traceIDFromParent("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	require.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", id)

	for _, bad := range []string{
		"",
		"garbage",
		"ff-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"00-00000000000000000000000000000000-00f067aa0ba902b7-01",
		"00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01",
		"00-4bf92f3577b34da6a3ce929d0e0e47-00f067aa0ba902b7-01",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa-01",
	} {
		_, ok := traceIDFromParent(bad)
		assert.False(t, ok, bad)
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Len(t, correlationID(r), 36, "falls back to a uuid")
}

func TestUpstreamURL(t *testing.T) {
	g := &Gateway{baseURL: "https://api.example.com/"}
	assert.Equal(t, "https://api.example.com/v1/messages", g.upstreamURL(PathMessages, ""))
	assert.Equal(t, "https://api.example.com/v1/messages?beta=true", g.upstreamURL(PathMessages, "beta=true"))
}
