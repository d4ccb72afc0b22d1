package events

import (
	"context"

	"github.com/compresr/messages-gateway/internal/monitoring"
)

// FileSink appends structured events to a JSONL file.
type FileSink struct {
	name string
	w    *monitoring.JSONLWriter
}

// NewFileSink creates the file if needed.
func NewFileSink(name, path string) (*FileSink, error) {
	w, err := monitoring.NewJSONLWriter(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{name: name, w: w}, nil
}

func (s *FileSink) Name() string { return s.name }

func (s *FileSink) Publish(ctx context.Context, ev CloudEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ev.Structured()
	if err != nil {
		return err
	}
	return s.w.AppendRaw(data)
}

func (s *FileSink) Close() error { return nil }
