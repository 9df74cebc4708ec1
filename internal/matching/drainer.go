package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rwa-platform/channel-service/internal/events"
	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/poller"
)

// Matcher ranks channels for a request.
type Matcher interface {
	Match(ctx context.Context, req *model.MatchRequest) ([]*model.MatchResult, error)
}

// Publisher delivers events and records poison items.
type Publisher interface {
	Publish(topic, key string, value any) error
	DeadLetter(ctx context.Context, msg events.Message, reason error)
}

// DrainerConfig holds queue-drain configuration.
type DrainerConfig struct {
	QueueKey   string        // Queue of serialized requests (default: matching:queue)
	Topic      string        // Topic for completed matches (default: matching-events)
	Interval   time.Duration // Time between drains (default: 30s)
	Workers    int           // Concurrent matches (default: 4)
	PopTimeout time.Duration // Wait for an empty queue before ending a drain (default: 1s)
}

// DefaultDrainerConfig returns sensible defaults.
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		QueueKey:   "matching:queue",
		Topic:      "matching-events",
		Interval:   30 * time.Second,
		Workers:    4,
		PopTimeout: time.Second,
	}
}

// DrainerStats is a snapshot of drainer counters.
type DrainerStats struct {
	Cycles       int64 `json:"cycles"`
	Processed    int64 `json:"processed"`
	Published    int64 `json:"published"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Drainer empties the matching queue on an interval.
type Drainer struct {
	cfg     DrainerConfig
	queue   kv.Queue
	matcher Matcher
	pub     Publisher
	logger  *slog.Logger
	poller  *poller.Poller

	// Now is replaceable in tests.
	Now func() time.Time

	// Metrics
	cycles       atomic.Int64
	processed    atomic.Int64
	published    atomic.Int64
	deadLettered atomic.Int64
}

// NewDrainer creates a new Drainer.
func NewDrainer(cfg DrainerConfig, queue kv.Queue, matcher Matcher, pub Publisher, logger *slog.Logger) *Drainer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	d := &Drainer{
		cfg:     cfg,
		queue:   queue,
		matcher: matcher,
		pub:     pub,
		logger:  logger,
		Now:     time.Now,
	}
	d.poller = poller.New(poller.Config{
		Name:     "matching queue drainer",
		Interval: cfg.Interval,
	}, poller.TaskFunc(d.drainCycle), logger)
	return d
}

// Start begins draining on the configured interval.
func (d *Drainer) Start(ctx context.Context) error {
	return d.poller.Start(ctx)
}

// Stop stops the drain loop after the running drain finishes its items.
func (d *Drainer) Stop(ctx context.Context) error {
	return d.poller.Stop(ctx)
}

// Stats returns current metrics.
func (d *Drainer) Stats() DrainerStats {
	return DrainerStats{
		Cycles:       d.cycles.Load(),
		Processed:    d.processed.Load(),
		Published:    d.published.Load(),
		DeadLettered: d.deadLettered.Load(),
	}
}

// Drain pops requests until the queue stays empty for PopTimeout or ctx is
// cancelled, matching them on the worker pool. It returns the number of
// payloads popped.
func (d *Drainer) Drain(ctx context.Context) int {
	jobs := make(chan []byte)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for payload := range jobs {
				d.process(ctx, payload)
			}
		}()
	}

	popped := 0
	for ctx.Err() == nil {
		payload, err := d.queue.Pop(ctx, d.cfg.QueueKey, d.cfg.PopTimeout)
		if err != nil {
			if !errors.Is(err, kv.ErrEmpty) && ctx.Err() == nil {
				d.logger.Warn("failed to pop matching request",
					"queue", d.cfg.QueueKey,
					"err", err,
				)
			}
			break
		}
		popped++
		jobs <- payload
	}

	close(jobs)
	wg.Wait()
	return popped
}

func (d *Drainer) drainCycle(ctx context.Context) {
	start := time.Now()
	before := d.Stats()

	popped := d.Drain(ctx)
	d.cycles.Add(1)

	if popped == 0 {
		return
	}
	after := d.Stats()
	d.logger.Info("matching drain complete",
		"requests", popped,
		"published", after.Published-before.Published,
		"dead_lettered", after.DeadLettered-before.DeadLettered,
		"duration", time.Since(start),
	)
}

// process matches one payload and publishes the outcome.
func (d *Drainer) process(ctx context.Context, payload []byte) {
	d.processed.Add(1)

	var req model.MatchRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		d.deadLetter(ctx, payload, "", fmt.Errorf("decode matching request: %w", err))
		return
	}

	results, err := d.matcher.Match(ctx, &req)
	if err != nil {
		d.deadLetter(ctx, payload, req.UserID, fmt.Errorf("match: %w", err))
		return
	}

	event := model.MatchingEvent{
		Type:        model.MatchingEventTypeCompleted,
		Request:     &req,
		Results:     results,
		ResultCount: len(results),
		Timestamp:   d.Now().Unix(),
	}
	if err := d.pub.Publish(d.cfg.Topic, req.UserID, event); err != nil {
		d.logger.Warn("failed to publish matching result",
			"user_id", req.UserID,
			"err", err,
		)
		return
	}
	d.published.Add(1)
}

func (d *Drainer) deadLetter(ctx context.Context, payload []byte, key string, reason error) {
	d.deadLettered.Add(1)
	d.logger.Warn("dead-lettering matching request",
		"queue", d.cfg.QueueKey,
		"err", reason,
	)
	d.pub.DeadLetter(ctx, events.Message{
		Topic: d.cfg.QueueKey,
		Key:   key,
		Value: payload,
		Time:  d.Now(),
	}, reason)
}
