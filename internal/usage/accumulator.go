package usage

import "github.com/tidwall/gjson"

// Usage is a snapshot of the values extracted from one response.
type Usage struct {
	Model               string
	MessageID           string
	StopReason          string
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	// ErrorType is the upstream error.type, when the response carried one.
	ErrorType string
}

// Accumulator folds streaming events into a Usage. Fields only move from
// unset to set; a later event without a value never clears an earlier one.
// Not safe for concurrent use.
type Accumulator struct {
	u Usage
}

// Observe applies one decoded event.
func (a *Accumulator) Observe(ev *StreamEvent) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case EventMessageStart:
		if ev.Message == nil {
			return
		}
		if ev.Message.Model != "" {
			a.u.Model = ev.Message.Model
		}
		if ev.Message.ID != "" {
			a.u.MessageID = ev.Message.ID
		}
		if u := ev.Message.Usage; u != nil {
			setIfPresent(&a.u.InputTokens, u.InputTokens)
			setIfPresent(&a.u.CacheCreationTokens, u.CacheCreationInputTokens)
			setIfPresent(&a.u.CacheReadTokens, u.CacheReadInputTokens)
		}
	case EventMessageDelta:
		var out *int
		if ev.Usage != nil && ev.Usage.OutputTokens != nil {
			out = ev.Usage.OutputTokens
		} else if ev.Delta != nil {
			out = ev.Delta.OutputTokens
		}
		if out != nil && *out > 0 {
			a.u.OutputTokens = *out
		}
		if ev.Delta != nil && ev.Delta.StopReason != nil && *ev.Delta.StopReason != "" {
			a.u.StopReason = *ev.Delta.StopReason
		}
	case EventError:
		if ev.Error != nil && ev.Error.Type != "" {
			a.u.ErrorType = ev.Error.Type
		}
	}
}

// ObserveData decodes a frame payload and applies it. Payloads that are not
// events or fail to parse are skipped; the return value reports whether the
// payload was applied.
func (a *Accumulator) ObserveData(data string) bool {
	ev, err := DecodeStreamEvent(data)
	if err != nil {
		return false
	}
	a.Observe(ev)
	return true
}

// Snapshot returns the values gathered so far.
func (a *Accumulator) Snapshot() Usage {
	return a.u
}

func setIfPresent(dst *int, v *int) {
	if v != nil && *v >= 0 {
		*dst = *v
	}
}

// ParseResponse extracts usage from a complete (non-streaming) response body.
// It never fails: fields that are missing or malformed stay zero.
func ParseResponse(body []byte) Usage {
	if !gjson.ValidBytes(body) {
		return Usage{}
	}
	res := gjson.ParseBytes(body)
	u := Usage{
		Model:               res.Get("model").String(),
		MessageID:           res.Get("id").String(),
		InputTokens:         nonNegative(res.Get("usage.input_tokens")),
		OutputTokens:        nonNegative(res.Get("usage.output_tokens")),
		CacheCreationTokens: nonNegative(res.Get("usage.cache_creation_input_tokens")),
		CacheReadTokens:     nonNegative(res.Get("usage.cache_read_input_tokens")),
		ErrorType:           res.Get("error.type").String(),
	}
	if sr := res.Get("stop_reason"); sr.Type == gjson.String {
		u.StopReason = sr.String()
	}
	return u
}

func nonNegative(r gjson.Result) int {
	if r.Type != gjson.Number {
		return 0
	}
	n := r.Int()
	if n < 0 {
		return 0
	}
	return int(n)
}
