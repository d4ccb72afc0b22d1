package gateway

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/compresr/messages-gateway/internal/config"
	"github.com/compresr/messages-gateway/internal/usage"
	"github.com/compresr/messages-gateway/internal/utils"
)

// relayNonStream forwards the request, waits for the complete response and
// returns it unchanged. Transport failures become a 502 envelope.
func (g *Gateway) relayNonStream(w http.ResponseWriter, r *http.Request, req *proxyRequest) usage.Record {
	upReq, err := g.newUpstreamRequest(r.Context(), PathMessages, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorKindAPI, err.Error())
		return req.record(usage.Usage{}, usage.StatusError, CategoryOther.ErrorKind(), "")
	}

	resp, err := g.client.Do(upReq)
	if err != nil {
		return g.nonStreamTransportError(w, req, err, "")
	}
	defer func() { _ = resp.Body.Close() }()

	requestID := resp.Header.Get(HeaderRequestID)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return g.nonStreamTransportError(w, req, err, requestID)
	}

	u := usage.ParseResponse(body)
	status := usage.StatusSuccess
	errorType := ""
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = usage.StatusError
		errorType = upstreamErrorType(u, resp.StatusCode)
		u = usage.Usage{Model: u.Model, ErrorType: u.ErrorType}
		log.Warn().
			Str("trace_id", req.traceID).
			Str("key_alias", req.alias).
			Int("status", resp.StatusCode).
			Str("error_type", errorType).
			Str("body", utils.Truncate(string(body), config.MaxErrorBodyLogLen)).
			Msg("upstream returned error")
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		log.Warn().Err(err).Str("trace_id", req.traceID).Msg("client disconnected before response was delivered")
	}

	return req.record(u, status, errorType, requestID)
}

func (g *Gateway) nonStreamTransportError(w http.ResponseWriter, req *proxyRequest, err error, requestID string) usage.Record {
	cat := Classify(err)
	log.Error().
		Err(err).
		Str("trace_id", req.traceID).
		Str("key_alias", req.alias).
		Str("category", cat.String()).
		Msg("upstream request failed")
	writeError(w, http.StatusBadGateway, ErrorKindAPI, "upstream request failed: "+err.Error())
	return req.record(usage.Usage{}, usage.StatusError, cat.ErrorKind(), requestID)
}
