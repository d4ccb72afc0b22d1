package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/compresr/messages-gateway/internal/utils"
)

// HTTPSink POSTs events in CloudEvents HTTP binary content mode: the payload
// is the body and the context attributes travel as ce-* headers.
type HTTPSink struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPSink posts to url with the extra static headers. A nil client uses
// http.DefaultClient; per-publish deadlines come from the context.
func NewHTTPSink(name, url string, headers map[string]string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{name: name, url: url, headers: headers, client: client}
}

func (s *HTTPSink) Name() string { return s.name }

func (s *HTTPSink) Publish(ctx context.Context, ev CloudEvent) error {
	body, err := ev.DataJSON()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	for k, v := range ev.Attributes() {
		if v != "" {
			req.Header.Set("ce-"+k, v)
		}
	}
	req.Header.Set("Content-Type", ev.DataContentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http sink: status %d: %s", resp.StatusCode, utils.Truncate(string(msg), 200))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
