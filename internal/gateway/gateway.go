// Package gateway relays messages API calls to the upstream provider.
//
// DESIGN: The dispatcher buffers the request body, resolves the caller,
// takes the next credential from the pool and hands a proxyRequest to one of
// two relays:
//   - nonstream.go: wait for the whole response, extract usage, forward it
//   - stream.go:    forward SSE frames as they arrive while accumulating usage
//
// Each relay returns exactly one usage.Record, which the dispatcher passes to
// the UsageEmitter and the metrics. Nothing on the request path waits for
// event publication.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/compresr/messages-gateway/internal/config"
	"github.com/compresr/messages-gateway/internal/credentials"
	"github.com/compresr/messages-gateway/internal/identity"
	"github.com/compresr/messages-gateway/internal/monitoring"
)

// Deps are the collaborators a Gateway is built from.
type Deps struct {
	Pool     *credentials.Pool
	Emitter  UsageEmitter
	Metrics  *monitoring.Metrics
	Resolver identity.Resolver
	// UsageStream, when set, is mounted at PathUsageStream.
	UsageStream http.Handler
	// Client overrides the upstream HTTP client.
	Client *http.Client
}

// Gateway is the HTTP front of the messages relay.
type Gateway struct {
	cfg       *config.Config
	pool      *credentials.Pool
	emitter   UsageEmitter
	metrics   *monitoring.Metrics
	resolver  identity.Resolver
	headers   HeaderPolicy
	client    *http.Client
	baseURL   string
	admission *semaphore.Weighted
	stream    http.Handler

	handler http.Handler
	server  *http.Server
}

// New wires a gateway. A nil pool is treated as empty.
func New(cfg *config.Config, deps Deps) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway: nil config")
	}
	if deps.Emitter == nil {
		return nil, errors.New("gateway: nil usage emitter")
	}
	pool := deps.Pool
	if pool == nil {
		pool = &credentials.Pool{}
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = identity.HeaderResolver{Header: cfg.Identity.SubjectHeader}
	}
	client := deps.Client
	if client == nil {
		client = newUpstreamClient(cfg.Anthropic.ConnectTimeout)
	}

	g := &Gateway{
		cfg:      cfg,
		pool:     pool,
		emitter:  deps.Emitter,
		metrics:  deps.Metrics,
		resolver: resolver,
		headers:  HeaderPolicy{DefaultVersion: cfg.Anthropic.DefaultVersion},
		client:   client,
		baseURL:  cfg.Anthropic.BaseURL,
		stream:   deps.UsageStream,
	}
	if cfg.Admission.MaxInFlight > 0 {
		g.admission = semaphore.NewWeighted(cfg.Admission.MaxInFlight)
	}
	g.handler = g.routes()
	g.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           g.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return g, nil
}

// newUpstreamClient bounds connection setup only. Responses, streamed or
// not, may take as long as upstream needs.
func newUpstreamClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = config.DefaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
			ReadBufferSize:        config.DefaultBufferSize * 8,
		},
	}
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+PathMessages, g.guard(http.HandlerFunc(g.handleMessages)))
	mux.Handle("POST "+PathCountTokens, g.guard(http.HandlerFunc(g.handleCountTokens)))
	mux.HandleFunc("POST "+PathEventLogging, g.handleEventLogging)
	mux.HandleFunc("GET "+PathHealth, g.handleHealth)
	if g.cfg.Metrics.Enabled && g.metrics != nil {
		mux.Handle("GET "+g.cfg.Metrics.Path, g.metrics.Handler())
	}
	if g.stream != nil {
		// The feed carries every caller's usage, so a subject is always required.
		mux.Handle("GET "+PathUsageStream, g.authenticate(true, g.stream))
	}
	return mux
}

// Handler returns the root handler.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Start serves until Shutdown is called.
func (g *Gateway) Start() error {
	log.Info().
		Str("addr", g.cfg.Server.Addr).
		Str("upstream", g.baseURL).
		Int("credentials", g.pool.Size()).
		Strs("aliases", g.pool.Aliases()).
		Msg("gateway listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	g.client.CloseIdleConnections()
	return err
}
