package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one event bound for a topic.
type Message struct {
	Topic string
	Key   string
	Value []byte
	Time  time.Time
}

// Sink writes messages to their destination.
type Sink interface {
	Write(ctx context.Context, msg Message) error
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(context.Context, Message) error

func (f SinkFunc) Write(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// KafkaConfig holds Kafka producer settings.
type KafkaConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
}

// KafkaSink writes each message to its own topic. Messages with the same key
// land on the same partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a Kafka producer. No connection is made until the
// first write.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{}, // per-key ordering
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           cfg.BatchTimeout,
	}
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Write(ctx context.Context, msg Message) error {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  msg.Time,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the producer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink logs every message instead of delivering it.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a sink that logs at level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Write(ctx context.Context, msg Message) error {
	s.logger.Log(ctx, s.level, "event",
		"topic", msg.Topic,
		"key", msg.Key,
		"value", string(msg.Value),
	)
	return nil
}

// Tee writes to every sink and joins their errors.
type Tee []Sink

func (t Tee) Write(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeadLetterRecord is the payload written to the dead-letter topic.
type DeadLetterRecord struct {
	Topic   string    `json:"topic"`
	Key     string    `json:"key"`
	Reason  string    `json:"reason"`
	Payload string    `json:"payload"`
	Time    time.Time `json:"time"`
}

// DeadLetterMessage wraps msg and the failure reason for the dead-letter
// topic.
func DeadLetterMessage(topic string, msg Message, reason error) Message {
	rec := DeadLetterRecord{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Payload: string(msg.Value),
		Time:    msg.Time,
	}
	if reason != nil {
		rec.Reason = reason.Error()
	}
	value, _ := json.Marshal(rec)
	return Message{
		Topic: topic,
		Key:   msg.Key,
		Value: value,
		Time:  time.Now(),
	}
}
