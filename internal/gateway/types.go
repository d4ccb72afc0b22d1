// Package gateway types - shared constants and per-request state.
//
// DESIGN: A proxyRequest is built by the dispatcher and handed to the relay
// that serves it. Everything a relay needs to build the usage
// record travels on it, including the correlation id, so nothing depends on
// ambient context.
package gateway

import (
	"net/http"
	"time"

	"github.com/compresr/messages-gateway/internal/usage"
)

// =============================================================================
// HEADERS
// =============================================================================

const (
	// HeaderAPIKey carries the upstream credential.
	HeaderAPIKey = "X-Api-Key"
	// HeaderVersion selects the upstream API version.
	HeaderVersion = "Anthropic-Version"
	// HeaderRequestID is the upstream-assigned request id.
	HeaderRequestID = "Request-Id"
	// HeaderTraceParent is the W3C trace context header.
	HeaderTraceParent = "Traceparent"
	// HeaderTraceID echoes the correlation id to the caller.
	HeaderTraceID = "X-Trace-Id"

	// PassthroughPrefix marks provider headers copied in both directions.
	PassthroughPrefix = "anthropic-"
)

// =============================================================================
// ROUTES
// =============================================================================

const (
	PathMessages      = "/v1/messages"
	PathCountTokens   = "/v1/messages/count_tokens"
	PathEventLogging  = "/api/event_logging/batch"
	PathHealth        = "/health"
	PathUsageStream   = "/v1/usage/stream"
	routeMessages     = "messages"
	routeCountTokens  = "count_tokens"
	statusLabelOK     = "success"
	statusLabelFailed = "error"
)

// UsageEmitter receives the usage record of every finished messages request.
// *events.Emitter satisfies it.
type UsageEmitter interface {
	Emit(rec usage.Record)
}

// proxyRequest is the per-call state handed to a relay. The dispatcher fills
// it before relaying; relays only read it.
type proxyRequest struct {
	body       []byte
	rawQuery   string
	inbound    http.Header
	secret     string
	alias      string
	subject    string
	traceID    string
	stream     bool
	receivedAt time.Time
}

// record builds the usage record for this request. Relays call it exactly
// once, at their terminal point.
func (p *proxyRequest) record(u usage.Usage, status usage.Status, errorType, upstreamRequestID string) usage.Record {
	return usage.BuildRecord(usage.RecordInput{
		Usage:     u,
		Status:    status,
		ErrorType: errorType,
		Stream:    p.stream,
		KeyAlias:  p.alias,
		TraceID:   p.traceID,
		RequestID: upstreamRequestID,
		Subject:   p.subject,
		StartedAt: p.receivedAt,
		EndedAt:   time.Now(),
	})
}
