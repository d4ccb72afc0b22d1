// Package usage extracts token usage from upstream responses and builds the
// per-request usage record.
//
// DESIGN: Streaming responses are folded event by event into an Accumulator.
// Non-streaming responses are read once with ParseResponse. Both produce a
// Usage snapshot that BuildRecord turns into the immutable Record emitted
// after the request finishes.
package usage

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event types relevant to usage accounting.
const (
	EventMessageStart = "message_start"
	EventMessageDelta = "message_delta"
	EventError        = "error"
)

// ErrNotEvent is returned for payloads that carry no JSON event, such as the
// "[DONE]" sentinel.
var ErrNotEvent = errors.New("payload is not a stream event")

// StreamEvent is the subset of a streaming event payload the gateway reads.
// Unknown fields are ignored.
type StreamEvent struct {
	Type    string        `json:"type"`
	Message *EventMessage `json:"message,omitempty"`
	Delta   *EventDelta   `json:"delta,omitempty"`
	Usage   *EventUsage   `json:"usage,omitempty"`
	Error   *StreamError  `json:"error,omitempty"`
}

// EventMessage is the message object carried by message_start.
type EventMessage struct {
	ID         string      `json:"id"`
	Model      string      `json:"model"`
	StopReason *string     `json:"stop_reason"`
	Usage      *EventUsage `json:"usage"`
}

// EventDelta is the delta object carried by message_delta.
type EventDelta struct {
	StopReason   *string `json:"stop_reason"`
	OutputTokens *int    `json:"output_tokens"`
}

// EventUsage holds the token counters. Absent counters stay nil.
type EventUsage struct {
	InputTokens              *int `json:"input_tokens"`
	OutputTokens             *int `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens"`
}

// StreamError is the error object of an in-stream error event.
type StreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DecodeStreamEvent parses the data payload of one SSE frame.
func DecodeStreamEvent(data string) (*StreamEvent, error) {
	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return nil, ErrNotEvent
	}
	var ev StreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
