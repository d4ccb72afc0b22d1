package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/messages-gateway/internal/config"
	"github.com/compresr/messages-gateway/internal/usage"
)

// Sink receives usage events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev CloudEvent) error
	Close() error
}

// Observer is told about dropped events and failed publishes.
// *monitoring.Metrics satisfies it.
type Observer interface {
	EventDropped()
	PublishFailed(sink string)
}

// Options configures an Emitter. Zero values take the config defaults.
type Options struct {
	Type           string
	Source         string
	QueueSize      int
	PublishTimeout time.Duration
	Observer       Observer
}

// Emitter queues usage records and publishes them in the background.
// Emit never blocks; when the queue is full the event is dropped and counted.
type Emitter struct {
	sinks []Sink
	opts  Options

	mu     sync.RWMutex
	closed bool
	queue  chan CloudEvent
	done   chan struct{}
}

// NewEmitter starts the publish worker.
func NewEmitter(sinks []Sink, opts Options) *Emitter {
	if opts.Type == "" {
		opts.Type = config.DefaultEventType
	}
	if opts.Source == "" {
		opts.Source = config.DefaultEventSource
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = config.DefaultQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = config.DefaultPublishTimeout
	}
	e := &Emitter{
		sinks: sinks,
		opts:  opts,
		queue: make(chan CloudEvent, opts.QueueSize),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit logs the request's usage and queues its event.
func (e *Emitter) Emit(rec usage.Record) {
	log.Info().
		Str("subject", rec.Subject).
		Str("model", rec.Model).
		Int("input_tokens", rec.InputTokens).
		Int("output_tokens", rec.OutputTokens).
		Int64("latency_ms", rec.LatencyMs).
		Bool("stream", rec.Stream).
		Str("status", string(rec.Status)).
		Str("key_alias", rec.KeyAlias).
		Str("trace_id", rec.TraceID).
		Msg("token usage")

	ev := NewUsageEvent(rec, e.opts.Type, e.opts.Source)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ev, "emitter closed")
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.drop(ev, "queue full")
	}
}

func (e *Emitter) drop(ev CloudEvent, reason string) {
	if e.opts.Observer != nil {
		e.opts.Observer.EventDropped()
	}
	log.Warn().Str("event_id", ev.ID).Str("reason", reason).Msg("usage event dropped")
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		for _, s := range e.sinks {
			e.publish(s, ev)
		}
	}
}

func (e *Emitter) publish(s Sink, ev CloudEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PublishTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sink panic: %v", r)
			}
		}()
		return s.Publish(ctx, ev)
	}()
	if err == nil {
		return
	}
	if e.opts.Observer != nil {
		e.opts.Observer.PublishFailed(s.Name())
	}
	log.Error().
		Err(err).
		Str("sink", s.Name()).
		Str("event_id", ev.ID).
		Str("cause_type", fmt.Sprintf("%T", rootCause(err))).
		Msg("usage event publish failed")
}

// Close stops accepting events, drains the queue, then closes every sink.
// ctx bounds the drain; sinks are closed either way.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	var errs []error
	select {
	case <-e.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain usage events: %w", ctx.Err()))
	}
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
