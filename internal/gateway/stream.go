package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/compresr/messages-gateway/internal/config"
	"github.com/compresr/messages-gateway/internal/sse"
	"github.com/compresr/messages-gateway/internal/usage"
	"github.com/compresr/messages-gateway/internal/utils"
)

// streamState is where a streaming relay ended.
type streamState int

const (
	stateCompleted streamState = iota
	stateUpstreamError
	stateClientDisconnected
	stateTransportError
)

func (s streamState) status() usage.Status {
	switch s {
	case stateCompleted:
		return usage.StatusSuccess
	case stateClientDisconnected:
		return usage.StatusClientDisconnected
	default:
		return usage.StatusError
	}
}

// relayStream forwards an SSE response frame by frame. Each frame is written
// and flushed before its payload is inspected, so usage extraction never
// delays or alters what the client receives.
func (g *Gateway) relayStream(w http.ResponseWriter, r *http.Request, req *proxyRequest) usage.Record {
	var acc usage.Accumulator
	requestID := ""
	finish := func(state streamState, errorType string) usage.Record {
		return req.record(acc.Snapshot(), state.status(), errorType, requestID)
	}

	upReq, err := g.newUpstreamRequest(r.Context(), PathMessages, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorKindAPI, err.Error())
		return finish(stateTransportError, CategoryOther.ErrorKind())
	}

	// Connecting
	resp, err := g.client.Do(upReq)
	if err != nil {
		cat := Classify(err)
		if r.Context().Err() != nil {
			log.Warn().Err(err).Str("trace_id", req.traceID).Msg("client disconnected before upstream responded")
			return finish(stateClientDisconnected, cat.ErrorKind())
		}
		log.Error().
			Err(err).
			Str("trace_id", req.traceID).
			Str("key_alias", req.alias).
			Str("category", cat.String()).
			Msg("upstream stream request failed")
		writeError(w, http.StatusBadGateway, ErrorKindAPI, "upstream request failed: "+err.Error())
		return finish(stateTransportError, cat.ErrorKind())
	}
	defer func() { _ = resp.Body.Close() }()
	requestID = resp.Header.Get(HeaderRequestID)

	rc := http.NewResponseController(w)

	// Upstream non-2xx: forward the error body as a single data frame.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxErrorBodySize))
		errorType := upstreamErrorType(usage.ParseResponse(body), resp.StatusCode)
		log.Warn().
			Str("trace_id", req.traceID).
			Str("key_alias", req.alias).
			Int("status", resp.StatusCode).
			Str("error_type", errorType).
			Str("body", utils.Truncate(string(body), config.MaxErrorBodyLogLen)).
			Msg("upstream returned error for stream")

		copyResponseHeaders(w.Header(), resp.Header)
		setSSEHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(sse.Encode("", body)); err == nil {
			_ = rc.Flush()
		}
		return req.record(usage.Usage{}, usage.StatusError, errorType, requestID)
	}

	copyResponseHeaders(w.Header(), resp.Header)
	setSSEHeaders(w.Header())
	w.WriteHeader(resp.StatusCode)
	if err := rc.Flush(); err != nil {
		return g.streamWriteFailed(w, rc, r, req, err, finish)
	}

	// Relaying
	dec := sse.NewDecoder(resp.Body)
	for {
		frame, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return finish(stateCompleted, "")
			}
			return g.streamReadFailed(w, rc, r, req, err, finish)
		}

		if err := sse.WriteFrame(w, frame); err != nil {
			return g.streamWriteFailed(w, rc, r, req, err, finish)
		}
		if err := rc.Flush(); err != nil {
			return g.streamWriteFailed(w, rc, r, req, err, finish)
		}

		if frame.HasData() {
			acc.ObserveData(frame.Data)
		}
	}
}

// streamReadFailed handles an upstream read error. A disconnect marker
// anywhere in the error chain, or a finished client context, ends the relay
// as a client disconnect.
func (g *Gateway) streamReadFailed(w http.ResponseWriter, rc *http.ResponseController, r *http.Request,
	req *proxyRequest, err error, finish func(streamState, string) usage.Record) usage.Record {
	cat := Classify(err)
	if IsClientDisconnect(err) || r.Context().Err() != nil {
		log.Warn().Err(err).Str("trace_id", req.traceID).Str("key_alias", req.alias).Msg("client disconnected mid-stream")
		return finish(stateClientDisconnected, cat.ErrorKind())
	}
	log.Error().
		Err(err).
		Str("trace_id", req.traceID).
		Str("key_alias", req.alias).
		Str("category", cat.String()).
		Msg("upstream stream interrupted")
	sendStreamError(w, rc, "upstream stream interrupted: "+err.Error())
	return finish(stateTransportError, cat.ErrorKind())
}

// streamWriteFailed handles a failed write or flush to the client.
func (g *Gateway) streamWriteFailed(w http.ResponseWriter, rc *http.ResponseController, r *http.Request,
	req *proxyRequest, err error, finish func(streamState, string) usage.Record) usage.Record {
	cat := Classify(err)
	if IsClientDisconnect(err) || r.Context().Err() != nil {
		log.Warn().Err(err).Str("trace_id", req.traceID).Str("key_alias", req.alias).Msg("client disconnected mid-stream")
		return finish(stateClientDisconnected, cat.ErrorKind())
	}
	log.Error().
		Err(err).
		Str("trace_id", req.traceID).
		Str("key_alias", req.alias).
		Str("category", cat.String()).
		Msg("stream write failed")
	sendStreamError(w, rc, "stream relay failed: "+err.Error())
	return finish(stateTransportError, cat.ErrorKind())
}

// sendStreamError emits an "error" event if the connection still accepts
// writes. Failures are ignored.
func sendStreamError(w http.ResponseWriter, rc *http.ResponseController, message string) {
	if _, err := w.Write(sse.Encode("error", errorEnvelope(ErrorKindAPI, message))); err != nil {
		return
	}
	_ = rc.Flush()
}
