package usage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	messageStart = `{"type":"message_start","message":{"id":"msg_01","model":"claude-sonnet-4","stop_reason":null,` +
		`"usage":{"input_tokens":25,"cache_creation_input_tokens":3,"cache_read_input_tokens":7,"output_tokens":1}}}`
	messageDelta = `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":42}}`
)

func TestAccumulator_FullStream(t *testing.T) {
	var acc Accumulator
	for _, data := range []string{
		messageStart,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_stop","index":0}`,
		messageDelta,
		`{"type":"message_stop"}`,
		"[DONE]",
	} {
		acc.ObserveData(data)
	}

	want := Usage{
		Model:               "claude-sonnet-4",
		MessageID:           "msg_01",
		StopReason:          "end_turn",
		InputTokens:         25,
		OutputTokens:        42,
		CacheCreationTokens: 3,
		CacheReadTokens:     7,
	}
	if diff := cmp.Diff(want, acc.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestAccumulator_ValuesNeverRegress(t *testing.T) {
	var acc Accumulator
	acc.ObserveData(messageStart)
	acc.ObserveData(messageDelta)

	// Later events with missing or zero values leave earlier ones alone.
	acc.ObserveData(`{"type":"message_start","message":{"usage":{}}}`)
	acc.ObserveData(`{"type":"message_delta","delta":{"stop_reason":null},"usage":{"output_tokens":0}}`)
	acc.ObserveData(`{"type":"message_delta","delta":{}}`)

	got := acc.Snapshot()
	assert.Equal(t, 25, got.InputTokens)
	assert.Equal(t, 42, got.OutputTokens)
	assert.Equal(t, 3, got.CacheCreationTokens)
	assert.Equal(t, 7, got.CacheReadTokens)
	assert.Equal(t, "end_turn", got.StopReason)
	assert.Equal(t, "claude-sonnet-4", got.Model)
	assert.Equal(t, "msg_01", got.MessageID)
}

func TestAccumulator_MalformedDataIgnored(t *testing.T) {
	var acc Accumulator
	acc.ObserveData(messageStart)

	assert.False(t, acc.ObserveData(`{"type":"message_delta",`))
	assert.False(t, acc.ObserveData(""))
	assert.False(t, acc.ObserveData("[DONE]"))

	assert.Equal(t, 25, acc.Snapshot().InputTokens)
}

func TestAccumulator_MissingStartLeavesZeros(t *testing.T) {
	var acc Accumulator
	acc.ObserveData(messageDelta)

	got := acc.Snapshot()
	assert.Equal(t, 0, got.InputTokens)
	assert.Equal(t, 42, got.OutputTokens)
	assert.Empty(t, got.Model)
}

func TestAccumulator_DeltaOutputTokensFallback(t *testing.T) {
	var acc Accumulator
	acc.ObserveData(`{"type":"message_delta","delta":{"stop_reason":"max_tokens","output_tokens":9}}`)

	assert.Equal(t, 9, acc.Snapshot().OutputTokens)
	assert.Equal(t, "max_tokens", acc.Snapshot().StopReason)
}

func TestAccumulator_InStreamError(t *testing.T) {
	var acc Accumulator
	acc.ObserveData(messageStart)
	acc.ObserveData(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)

	assert.Equal(t, "overloaded_error", acc.Snapshot().ErrorType)
}

func TestDecodeStreamEvent_Error(t *testing.T) {
	ev, err := DecodeStreamEvent(` {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}} `)
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Type)
	require.NotNil(t, ev.Error)
	assert.Equal(t, StreamError{Type: "overloaded_error", Message: "Overloaded"}, *ev.Error)

	_, err = DecodeStreamEvent("[DONE]")
	assert.ErrorIs(t, err, ErrNotEvent)
}

func TestAccumulator_TokenKeysInsideTextIgnored(t *testing.T) {
	var acc Accumulator
	acc.ObserveData(messageStart)
	acc.ObserveData(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"{\"output_tokens\":999,\"input_tokens\":999}"}}`)
	acc.ObserveData(messageDelta)

	u := acc.Snapshot()
	assert.Equal(t, 25, u.InputTokens)
	assert.Equal(t, 42, u.OutputTokens)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Usage
	}{
		{
			name: "full message",
			body: `{"id":"msg_02","type":"message","model":"claude-haiku","stop_reason":"end_turn",` +
				`"usage":{"input_tokens":10,"output_tokens":20,"cache_creation_input_tokens":1,"cache_read_input_tokens":2}}`,
			want: Usage{Model: "claude-haiku", MessageID: "msg_02", StopReason: "end_turn",
				InputTokens: 10, OutputTokens: 20, CacheCreationTokens: 1, CacheReadTokens: 2},
		},
		{
			name: "missing usage",
			body: `{"id":"msg_03","model":"claude-haiku","stop_reason":null}`,
			want: Usage{Model: "claude-haiku", MessageID: "msg_03"},
		},
		{
			name: "error body",
			body: `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			want: Usage{ErrorType: "rate_limit_error"},
		},
		{
			name: "negative counters clamp to zero",
			body: `{"usage":{"input_tokens":-5,"output_tokens":"x"}}`,
			want: Usage{},
		},
		{
			name: "not json",
			body: `<html>bad gateway</html>`,
			want: Usage{},
		},
		{
			name: "empty",
			body: ``,
			want: Usage{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseResponse([]byte(tt.body))); diff != "" {
				t.Errorf("ParseResponse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildRecord(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)

	rec := BuildRecord(RecordInput{
		Usage:     Usage{Model: "m", InputTokens: 10, OutputTokens: 5, CacheCreationTokens: 100, CacheReadTokens: 200},
		Status:    StatusSuccess,
		Stream:    true,
		KeyAlias:  "primary",
		TraceID:   "trace-1",
		RequestID: "req_1",
		Subject:   "alice",
		StartedAt: start,
		EndedAt:   end,
	})

	assert.Equal(t, 15, rec.TotalTokens, "cache tokens are not part of the total")
	assert.Equal(t, int64(1500), rec.LatencyMs)
	assert.Equal(t, end, rec.Timestamp)
	assert.Equal(t, "req_1", rec.AnthropicRequestID)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"key_alias":"primary"`)
	assert.NotContains(t, string(raw), "error_type")
}

func TestBuildRecord_ErrorTypePrecedence(t *testing.T) {
	rec := BuildRecord(RecordInput{Usage: Usage{ErrorType: "from_body"}, Status: StatusError})
	assert.Equal(t, "from_body", rec.ErrorType)

	rec = BuildRecord(RecordInput{Usage: Usage{ErrorType: "from_body"}, ErrorType: "timeout_error", Status: StatusError})
	assert.Equal(t, "timeout_error", rec.ErrorType)
	assert.Equal(t, int64(0), rec.LatencyMs)
}

// A 200 response whose body carries an error object keeps status success but
// still reports the error type. Consumers have to check both fields.
func TestBuildRecord_SuccessStatusWithErrorBody(t *testing.T) {
	u := ParseResponse([]byte(`{"type":"error","error":{"type":"api_error"}}`))

	rec := BuildRecord(RecordInput{Usage: u, Status: StatusSuccess})

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, "api_error", rec.ErrorType)
}
