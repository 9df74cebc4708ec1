package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds Publisher configuration.
type Config struct {
	BufferSize      int           // Max queued messages (default: 1000)
	Workers         int           // Concurrent writers (default: 4)
	Timeout         time.Duration // Per-write timeout (default: 10s)
	DeadLetterTopic string        // Topic for undeliverable messages
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:      1000,
		Workers:         4,
		Timeout:         10 * time.Second,
		DeadLetterTopic: "channel-dead-letter",
	}
}

// Stats is a snapshot of publisher counters.
type Stats struct {
	Published    int64 `json:"published"`
	Failed       int64 `json:"failed"`
	DeadLettered int64 `json:"dead_lettered"`
	Dropped      int64 `json:"dropped"`
	Pending      int   `json:"pending"`
}

// Publisher delivers messages asynchronously through a worker pool.
type Publisher struct {
	cfg        Config
	sink       Sink
	deadLetter Sink
	logger     *slog.Logger

	buf *Buffer[Message]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	published    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
	dropped      atomic.Int64
}

// NewPublisher creates a publisher writing to sink. A nil deadLetter logs
// undeliverable messages instead.
func NewPublisher(cfg Config, sink, deadLetter Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if deadLetter == nil {
		deadLetter = NewLogSink(logger, slog.LevelError)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Publisher{
		cfg:        cfg,
		sink:       sink,
		deadLetter: deadLetter,
		logger:     logger,
		buf:        NewBuffer[Message](cfg.BufferSize),
	}
}

// Start launches the workers. Writes in flight are not cancelled by ctx so
// that Stop can drain the buffer during shutdown.
func (p *Publisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.logger.Info("event publisher started",
		"workers", p.cfg.Workers,
		"buffer_size", p.buf.Cap(),
	)
	return nil
}

// Stop closes the buffer and waits for the workers to drain it. Writes still
// running when ctx expires are cancelled.
func (p *Publisher) Stop(ctx context.Context) error {
	p.buf.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		p.logger.Info("event publisher stopped",
			"published", p.published.Load(),
			"dead_lettered", p.deadLettered.Load(),
		)
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		p.logger.Warn("event publisher stop timed out", "pending", p.buf.Len())
		return ctx.Err()
	}
}

// Publish marshals value as JSON and enqueues it for topic.
func (p *Publisher) Publish(topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return p.PublishMessage(Message{Topic: topic, Key: key, Value: data, Time: time.Now()})
}

// PublishMessage enqueues msg without blocking.
func (p *Publisher) PublishMessage(msg Message) error {
	if err := p.buf.Send(msg); err != nil {
		p.dropped.Add(1)
		p.logger.Error("event dropped",
			"topic", msg.Topic,
			"key", msg.Key,
			"bytes", len(msg.Value),
			"err", err,
		)
		return err
	}
	return nil
}

// DeadLetter records msg as undeliverable. It is used by the workers and by
// background consumers that meet a poison item.
func (p *Publisher) DeadLetter(ctx context.Context, msg Message, reason error) {
	p.deadLettered.Add(1)

	dl := DeadLetterMessage(p.cfg.DeadLetterTopic, msg, reason)
	if err := p.deadLetter.Write(ctx, dl); err != nil {
		p.logger.Error("dead letter write failed",
			"topic", msg.Topic,
			"key", msg.Key,
			"reason", reason,
			"payload", string(msg.Value),
			"err", err,
		)
	}
}

// Stats returns current metrics.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published:    p.published.Load(),
		Failed:       p.failed.Load(),
		DeadLettered: p.deadLettered.Load(),
		Dropped:      p.dropped.Load(),
		Pending:      p.buf.Len(),
	}
}

// worker writes messages until the buffer is closed and empty.
func (p *Publisher) worker() {
	defer p.wg.Done()

	for {
		msg, ok := p.buf.Receive()
		if !ok {
			return
		}
		p.deliver(msg)
	}
}

func (p *Publisher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.sink.Write(ctx, msg); err != nil {
		p.failed.Add(1)
		p.logger.Warn("event publish failed",
			"topic", msg.Topic,
			"key", msg.Key,
			"err", err,
		)
		dlCtx, dlCancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
		defer dlCancel()
		p.DeadLetter(dlCtx, msg, err)
		return
	}
	p.published.Add(1)
}
