package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/messages-gateway/internal/config"
	"github.com/compresr/messages-gateway/internal/credentials"
	"github.com/compresr/messages-gateway/internal/identity"
	"github.com/compresr/messages-gateway/internal/usage"
	"github.com/compresr/messages-gateway/internal/utils"
)

// guard resolves the caller identity and applies admission control before
// next runs.
func (g *Gateway) guard(next http.Handler) http.Handler {
	return g.authenticate(g.cfg.Identity.Required, g.admit(next))
}

// authenticate stores the caller subject on the request context. A forbidden
// subject always gets 403; a missing one gets 401 when required is set and
// resolves to identity.Anonymous otherwise.
func (g *Gateway) authenticate(required bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := g.resolver.Resolve(r)
		if errors.Is(err, identity.ErrForbidden) {
			log.Warn().Str("path", r.URL.Path).Str("subject", subject).Msg("caller not permitted")
			writeError(w, http.StatusForbidden, ErrorKindPermission, "caller is not permitted to use this gateway")
			return
		}
		if err != nil || subject == "" {
			if required {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("caller identity missing")
				writeError(w, http.StatusUnauthorized, ErrorKindAuthentication, "missing or invalid caller identity")
				return
			}
			subject = identity.Anonymous
		}
		next.ServeHTTP(w, r.WithContext(identity.WithSubject(r.Context(), subject)))
	})
}

// admit rejects requests beyond admission.max_in_flight with 503.
func (g *Gateway) admit(next http.Handler) http.Handler {
	if g.admission == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.admission.TryAcquire(1) {
			log.Warn().Str("path", r.URL.Path).Str("subject", identity.FromContext(r.Context())).Msg("admission limit reached")
			writeError(w, http.StatusServiceUnavailable, ErrorKindOverloaded, "gateway is at capacity, retry later")
			return
		}
		defer g.admission.Release(1)
		next.ServeHTTP(w, r)
	})
}

// handleMessages is the dispatcher for POST /v1/messages.
func (g *Gateway) handleMessages(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()
	traceID := correlationID(r)
	w := &statusWriter{ResponseWriter: rw}
	w.Header().Set(HeaderTraceID, traceID)

	g.metrics.InFlightInc()
	defer g.metrics.InFlightDec()

	req := &proxyRequest{
		rawQuery:   r.URL.RawQuery,
		inbound:    r.Header,
		subject:    identity.FromContext(r.Context()),
		traceID:    traceID,
		receivedAt: start,
	}
	emitted := false
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		log.Error().Str("trace_id", traceID).Str("key_alias", req.alias).Interface("panic", p).Msg("dispatch failed")
		if !w.wrote {
			writeError(w, http.StatusInternalServerError, ErrorKindAPI, fmt.Sprintf("internal error: %v", p))
		}
		if !emitted {
			emitted = true
			g.emitter.Emit(req.record(usage.Usage{}, usage.StatusError, ErrorKindAPI, ""))
		}
		g.metrics.ObserveRequest(routeMessages, req.stream, statusLabelFailed, time.Since(start))
		if p == http.ErrAbortHandler {
			panic(p)
		}
	}()

	body, err := readBody(w, r)
	if err != nil {
		status, kind, msg := bodyReadStatus(err)
		writeError(w, status, kind, msg)
		g.metrics.ObserveRequest(routeMessages, false, statusLabelFailed, time.Since(start))
		return
	}

	secret, alias, err := g.pool.Next()
	if err != nil {
		log.Error().Err(err).Str("trace_id", traceID).Msg("no credential available")
		writeError(w, http.StatusInternalServerError, ErrorKindAPI, credentialErrorMessage(err))
		g.metrics.ObserveRequest(routeMessages, false, statusLabelFailed, time.Since(start))
		return
	}

	req.body = body
	req.secret = secret
	req.alias = alias
	req.stream = isStreamingRequest(body)

	log.Debug().
		Str("trace_id", traceID).
		Str("subject", req.subject).
		Str("key_alias", alias).
		Bool("stream", req.stream).
		Int("body_bytes", len(body)).
		Msg("dispatching request")

	var rec usage.Record
	if req.stream {
		rec = g.relayStream(w, r, req)
	} else {
		rec = g.relayNonStream(w, r, req)
	}

	emitted = true
	g.emitter.Emit(rec)
	g.metrics.ObserveRequest(routeMessages, req.stream, string(rec.Status), time.Since(start))
	g.metrics.AddTokens(rec.InputTokens, rec.OutputTokens, rec.CacheCreationTokens, rec.CacheReadTokens)
}

// handleCountTokens forwards token counting requests without usage tracking.
func (g *Gateway) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	statusLabel := statusLabelFailed
	defer func() {
		g.metrics.ObserveRequest(routeCountTokens, false, statusLabel, time.Since(start))
	}()

	body, err := readBody(w, r)
	if err != nil {
		status, kind, msg := bodyReadStatus(err)
		writeError(w, status, kind, msg)
		return
	}
	secret, alias, err := g.pool.Next()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorKindAPI, credentialErrorMessage(err))
		return
	}

	req := &proxyRequest{body: body, rawQuery: r.URL.RawQuery, inbound: r.Header, secret: secret, alias: alias}
	upReq, err := g.newUpstreamRequest(r.Context(), PathCountTokens, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorKindAPI, err.Error())
		return
	}
	resp, err := g.client.Do(upReq)
	if err != nil {
		log.Error().Err(err).Str("key_alias", alias).Msg("count_tokens upstream request failed")
		writeError(w, http.StatusBadGateway, ErrorKindAPI, "upstream request failed: "+err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debug().Err(err).Msg("count_tokens response copy interrupted")
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		statusLabel = statusLabelOK
	}
}

// handleEventLogging accepts and discards client telemetry batches.
func (g *Gateway) handleEventLogging(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, config.MaxRequestBodySize))
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	Status      string            `json:"status"`
	Credentials credentialsHealth `json:"credentials"`
}

type credentialsHealth struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// handleHealth reports UP while at least one credential is configured.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	count := g.pool.Size()
	resp := healthResponse{Status: "UP", Credentials: credentialsHealth{Status: "UP", Count: count}}
	code := http.StatusOK
	if count == 0 {
		resp.Status, resp.Credentials.Status = "DOWN", "DOWN"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// upstreamErrorType names a non-2xx upstream response for the usage record.
func upstreamErrorType(u usage.Usage, status int) string {
	return utils.FirstNonEmpty(u.ErrorType, fmt.Sprintf("http_%d", status))
}

// credentialErrorMessage hides everything but the fact that selection failed.
func credentialErrorMessage(err error) string {
	if errors.Is(err, credentials.ErrNoCredentials) {
		return "no credential configured"
	}
	return "credential selection failed"
}
