// Package events carries the engine's structured lifecycle and consensus
// events to whatever transports are configured. The engine itself only
// ever sees the EventSink interface.
package events

import (
	"context"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/pkg/kafka"
	"PulseTrade/pkg/logger"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink backed by the process logger.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit logs the event.
func (s *LogSink) Emit(_ context.Context, ev *models.Event) {
	fields := []logger.Field{
		logger.String("event", string(ev.Type)),
		logger.String("component", ev.Component),
	}
	if ev.Symbol != "" {
		fields = append(fields, logger.String("symbol", ev.Symbol))
	}
	if ev.Reason != "" {
		fields = append(fields, logger.String("reason", ev.Reason))
	}
	if ev.Before != "" || ev.After != "" {
		fields = append(fields,
			logger.String("before", ev.Before),
			logger.String("after", ev.After))
	}
	for k, v := range ev.Fields {
		fields = append(fields, logger.Any(k, v))
	}
	s.log.Info("engine event", fields...)
}

// Close is a no-op; the logger outlives the sink.
func (s *LogSink) Close() error { return nil }

// KafkaSink publishes events to a Kafka topic, keyed by symbol so events
// for one symbol stay ordered within a partition.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewKafkaSink creates a Kafka-backed sink.
func NewKafkaSink(producer *kafka.Producer, topic string, log *logger.Logger) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, log: log}
}

// Emit publishes the event. Publish failures are logged, never propagated:
// observability must not stall the trading loops.
func (s *KafkaSink) Emit(ctx context.Context, ev *models.Event) {
	if err := s.producer.Publish(ctx, s.topic, []byte(ev.Symbol), ev); err != nil {
		s.log.Warn("event publish failed",
			logger.String("event", string(ev.Type)),
			logger.Error(err))
	}
}

// Close closes the underlying producer.
func (s *KafkaSink) Close() error { return s.producer.Close() }

// Fanout delivers each event to every attached sink.
type Fanout struct {
	sinks []domrepo.EventSink
}

// NewFanout combines sinks into one.
func NewFanout(sinks ...domrepo.EventSink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Emit forwards the event to all sinks in order.
func (f *Fanout) Emit(ctx context.Context, ev *models.Event) {
	for _, s := range f.sinks {
		s.Emit(ctx, ev)
	}
}

// Close closes all sinks, returning the first failure.
func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
