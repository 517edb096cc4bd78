// Package kafkabus connects the index coordinator to Kafka: commands are
// consumed from one topic and every emitted event is published to another,
// keyed by event type.
package kafkabus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
)

const defaultBuffer = 256

// Submitter accepts commands. *engine.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd engine.Command) error
}

// Publisher writes messages one at a time or as a single batch.
// *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CommandHandler returns a kafka.MessageHandler that decodes each message as
// an engine command and submits it. Undecodable or invalid commands are
// logged and skipped so they do not block the partition.
func CommandHandler(s Submitter) kafka.MessageHandler {
	log := logger.WithComponent("kafka-commands")
	return func(ctx context.Context, key []byte, value []byte) error {
		cmd, err := kafka.DecodeJSON[engine.Command](value)
		if err != nil {
			log.Error("failed to decode command", "error", err, "key", string(key))
			return nil
		}
		if err := cmd.Validate(); err != nil {
			log.Warn("skipping invalid command", "error", err, "type", cmd.Type)
			return nil
		}
		if err := s.Submit(ctx, cmd); err != nil {
			return fmt.Errorf("submitting %s command: %w", cmd.Type, err)
		}
		log.Debug("command submitted", "type", cmd.Type)
		return nil
	}
}

// Sink is an engine.EventSink that publishes events from its own goroutine.
// Emit never blocks the coordinator: when the buffer is full the event is
// dropped and counted.
type Sink struct {
	publisher Publisher
	events    chan engine.Event
	dropped   atomic.Int64
	logger    *slog.Logger
}

// NewSink returns a Sink with room for buffer undelivered events.
func NewSink(p Publisher, buffer int) *Sink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Sink{
		publisher: p,
		events:    make(chan engine.Event, buffer),
		logger:    logger.WithComponent("kafka-events"),
	}
}

func (s *Sink) Emit(e engine.Event) {
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
		s.logger.Warn("event buffer full, dropping event", "type", e.Type)
	}
}

// Dropped returns the number of events discarded so far.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Run publishes buffered events until ctx is cancelled, then flushes what is
// already queued as one batch with a fresh context.
func (s *Sink) Run(ctx context.Context) error {
	s.logger.Info("event publisher started")
	for {
		if ctx.Err() != nil {
			s.flush()
			s.logger.Info("event publisher stopped", "dropped", s.Dropped())
			return nil
		}
		select {
		case <-ctx.Done():
			s.flush()
			s.logger.Info("event publisher stopped", "dropped", s.Dropped())
			return nil
		case e := <-s.events:
			s.publish(ctx, e)
		}
	}
}

func (s *Sink) flush() {
	var batch []kafka.Event
drain:
	for {
		select {
		case e := <-s.events:
			batch = append(batch, message(e))
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}
	if err := s.publisher.PublishBatch(context.Background(), batch); err != nil {
		s.logger.Error("failed to flush events", "count", len(batch), "error", err)
	}
}

func (s *Sink) publish(ctx context.Context, e engine.Event) {
	if err := s.publisher.Publish(ctx, message(e)); err != nil {
		s.logger.Error("failed to publish event", "type", e.Type, "error", err)
	}
}

func message(e engine.Event) kafka.Event {
	return kafka.Event{
		Key:     string(e.Type),
		Value:   e,
		Headers: map[string]string{"type": string(e.Type)},
	}
}
