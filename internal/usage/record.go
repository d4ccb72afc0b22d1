package usage

import "time"

// Status is the final state of a request.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusError              Status = "error"
	StatusClientDisconnected Status = "client_disconnected"
)

// Record is the immutable usage record emitted once per request.
type Record struct {
	Model               string    `json:"model,omitempty"`
	InputTokens         int       `json:"input_tokens"`
	OutputTokens        int       `json:"output_tokens"`
	CacheCreationTokens int       `json:"cache_creation_tokens"`
	CacheReadTokens     int       `json:"cache_read_tokens"`
	TotalTokens         int       `json:"total_tokens"`
	MessageID           string    `json:"message_id,omitempty"`
	LatencyMs           int64     `json:"latency_ms"`
	Stream              bool      `json:"stream"`
	StopReason          string    `json:"stop_reason,omitempty"`
	Status              Status    `json:"status"`
	ErrorType           string    `json:"error_type,omitempty"`
	KeyAlias            string    `json:"key_alias"`
	TraceID             string    `json:"trace_id"`
	AnthropicRequestID  string    `json:"anthropic_request_id,omitempty"`
	Subject             string    `json:"subject"`
	Timestamp           time.Time `json:"timestamp"`
}

// RecordInput carries everything the relays know when a request finishes.
type RecordInput struct {
	Usage     Usage
	Status    Status
	ErrorType string
	Stream    bool
	KeyAlias  string
	TraceID   string
	RequestID string
	Subject   string
	StartedAt time.Time
	EndedAt   time.Time
}

// BuildRecord assembles the final record. TotalTokens is input plus output;
// cache tokens are reported separately. An explicit ErrorType wins over the
// one found in the response.
func BuildRecord(in RecordInput) Record {
	errorType := in.ErrorType
	if errorType == "" {
		errorType = in.Usage.ErrorType
	}
	ended := in.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	latency := ended.Sub(in.StartedAt).Milliseconds()
	if in.StartedAt.IsZero() || latency < 0 {
		latency = 0
	}
	return Record{
		Model:               in.Usage.Model,
		InputTokens:         in.Usage.InputTokens,
		OutputTokens:        in.Usage.OutputTokens,
		CacheCreationTokens: in.Usage.CacheCreationTokens,
		CacheReadTokens:     in.Usage.CacheReadTokens,
		TotalTokens:         in.Usage.InputTokens + in.Usage.OutputTokens,
		MessageID:           in.Usage.MessageID,
		LatencyMs:           latency,
		Stream:              in.Stream,
		StopReason:          in.Usage.StopReason,
		Status:              in.Status,
		ErrorType:           errorType,
		KeyAlias:            in.KeyAlias,
		TraceID:             in.TraceID,
		AnthropicRequestID:  in.RequestID,
		Subject:             in.Subject,
		Timestamp:           ended.UTC(),
	}
}
