// Package config loads gateway settings. defaults.go holds every default and
// limit so the YAML layer, the server and the tests agree on one value.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultServerAddr is the listen address.
const DefaultServerAddr = ":8080"

// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// DefaultIdleTimeout closes idle keep-alive connections.
const DefaultIdleTimeout = 120 * time.Second

// DefaultShutdownTimeout is how long in-flight requests get on SIGTERM.
// Streams can run for minutes; anything still open after this is cut.
const DefaultShutdownTimeout = 30 * time.Second

// =============================================================================
// UPSTREAM
// =============================================================================

// DefaultBaseURL is the upstream messages API.
const DefaultBaseURL = "https://api.anthropic.com"

// DefaultAnthropicVersion is sent when the caller supplies no anthropic-version.
const DefaultAnthropicVersion = "2023-06-01"

// DefaultDialTimeout is the TCP connect timeout to upstream. The relay itself
// has no read deadline.
const DefaultDialTimeout = 30 * time.Second

// KeysEnvVar holds comma-separated keys used when the YAML key list is empty.
const KeysEnvVar = "ANTHROPIC_API_KEYS"

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultBufferSize is the standard I/O buffer size.
const DefaultBufferSize = 4096

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxErrorBodySize caps how much of an upstream error body is read (1MB).
const MaxErrorBodySize = 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// IDENTITY
// =============================================================================

// DefaultSubjectHeader carries the subject set by the upstream auth layer.
const DefaultSubjectHeader = "X-Auth-Subject"

// =============================================================================
// USAGE EVENTS
// =============================================================================

// DefaultEventType is the CloudEvents type of usage events.
const DefaultEventType = "dev.compresr.gateway.usage.v1"

// DefaultEventSource is the CloudEvents source of usage events.
const DefaultEventSource = "/gateway/messages"

// DefaultQueueSize is the emitter's buffered queue length.
const DefaultQueueSize = 1024

// DefaultPublishTimeout bounds a single publish to one sink.
const DefaultPublishTimeout = 5 * time.Second

// DefaultRetention is how long the sqlite outbox keeps events.
const DefaultRetention = 7 * 24 * time.Hour

// DefaultPruneSchedule is the cron schedule of the outbox pruner.
const DefaultPruneSchedule = "@every 1h"

// =============================================================================
// METRICS
// =============================================================================

// DefaultMetricsPath serves Prometheus metrics.
const DefaultMetricsPath = "/metrics"
