package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, ev CloudEvent) error {
	data, err := ev.Structured()
	if err != nil {
		return err
	}
	s.logger.Info().RawJSON("cloudevent", data).Msg("usage event")
	return nil
}

func (s *LogSink) Close() error { return nil }
