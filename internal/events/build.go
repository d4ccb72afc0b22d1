package events

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/compresr/messages-gateway/internal/config"
)

// BuildSinks constructs the configured sinks. When a websocket sink is
// configured its Hub is also returned so the server can mount it.
// On error every sink built so far is closed.
func BuildSinks(ctx context.Context, cfgs []config.SinkConfig) ([]Sink, *Hub, error) {
	var (
		sinks []Sink
		hub   *Hub
	)
	fail := func(err error) ([]Sink, *Hub, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, nil, err
	}

	for i, c := range cfgs {
		name := c.Label()
		switch c.Type {
		case config.SinkLog:
			sinks = append(sinks, NewLogSink(log.Logger))
		case config.SinkFile:
			s, err := NewFileSink(name, c.Path)
			if err != nil {
				return fail(fmt.Errorf("sink %d (%s): %w", i, name, err))
			}
			sinks = append(sinks, s)
		case config.SinkHTTP:
			sinks = append(sinks, NewHTTPSink(name, c.URL, c.Headers, &http.Client{}))
		case config.SinkSQLite:
			s, err := NewSQLiteSink(name, c.DSN, c.Retention, c.PruneSchedule)
			if err != nil {
				return fail(fmt.Errorf("sink %d (%s): %w", i, name, err))
			}
			sinks = append(sinks, s)
		case config.SinkSQS:
			client, err := NewSQSClient(ctx, c.Region, c.Endpoint)
			if err != nil {
				return fail(fmt.Errorf("sink %d (%s): %w", i, name, err))
			}
			sinks = append(sinks, NewSQSSink(name, c.QueueURL, client))
		case config.SinkWebSocket:
			if hub != nil {
				return fail(fmt.Errorf("sink %d (%s): only one websocket sink is supported", i, name))
			}
			hub = NewHub(name)
			sinks = append(sinks, hub)
		default:
			return fail(fmt.Errorf("sink %d: unknown type %q", i, c.Type))
		}
		log.Info().Str("sink", name).Str("type", c.Type).Msg("usage sink configured")
	}
	return sinks, hub, nil
}
