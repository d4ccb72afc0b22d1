// Package events publishes usage records as CloudEvents.
//
// DESIGN: The gateway hands each finished request's usage.Record to an
// Emitter. The Emitter wraps it in a CloudEvents v1.0 envelope and fans it
// out to every configured Sink from a single background worker, so a slow or
// failing broker never blocks a relay. Publish failures are logged and
// counted, never returned to the request path.
//
// Sinks:
//   - log:       structured log line (default)
//   - file:      JSONL file
//   - http:      CloudEvents HTTP binary mode POST
//   - sqlite:    local outbox table with cron retention
//   - sqs:       AWS SQS message with ce-* attributes
//   - websocket: live feed for connected dashboards
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/compresr/messages-gateway/internal/usage"
	"github.com/compresr/messages-gateway/internal/utils"
)

// SpecVersion is the CloudEvents version produced.
const SpecVersion = "1.0"

// ContentTypeJSON is the datacontenttype of every usage event.
const ContentTypeJSON = "application/json"

// CloudEvent is a usage event in CloudEvents structured form.
type CloudEvent struct {
	SpecVersion     string       `json:"specversion"`
	ID              string       `json:"id"`
	Type            string       `json:"type"`
	Source          string       `json:"source"`
	Subject         string       `json:"subject"`
	Time            time.Time    `json:"time"`
	DataContentType string       `json:"datacontenttype"`
	Data            usage.Record `json:"data"`

	// deliveryID is unique per NewUsageEvent call. ID is not: requests that
	// share a trace share it.
	deliveryID string
}

// NewUsageEvent wraps rec. The event id is the record's trace id when it has
// one, else a new UUID. Subject and time mirror the payload so envelope and
// data always agree.
func NewUsageEvent(rec usage.Record, eventType, source string) CloudEvent {
	id := rec.TraceID
	if id == "" {
		id = uuid.NewString()
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
		rec.Timestamp = ts
	}
	return CloudEvent{
		SpecVersion:     SpecVersion,
		ID:              id,
		Type:            eventType,
		Source:          source,
		Subject:         rec.Subject,
		Time:            ts,
		DataContentType: ContentTypeJSON,
		Data:            rec,
		deliveryID:      uuid.NewString(),
	}
}

// DeliveryID identifies this event instance for idempotent storage. Events
// built without NewUsageEvent fall back to ID.
func (e CloudEvent) DeliveryID() string {
	if e.deliveryID != "" {
		return e.deliveryID
	}
	return e.ID
}

// Structured encodes the whole envelope (structured content mode).
func (e CloudEvent) Structured() ([]byte, error) {
	return utils.MarshalNoEscape(e)
}

// DataJSON encodes only the payload (binary content mode body).
func (e CloudEvent) DataJSON() ([]byte, error) {
	return utils.MarshalNoEscape(e.Data)
}

// Attributes returns the context attributes for binary content mode, keyed
// by attribute name without the transport prefix.
func (e CloudEvent) Attributes() map[string]string {
	return map[string]string{
		"specversion": e.SpecVersion,
		"id":          e.ID,
		"type":        e.Type,
		"source":      e.Source,
		"subject":     e.Subject,
		"time":        e.Time.UTC().Format(time.RFC3339Nano),
	}
}
