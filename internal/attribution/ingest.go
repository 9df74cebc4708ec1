package attribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rwa-platform/channel-service/internal/events"
	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/poller"
)

// DeadLetterer records payloads that could not be ingested.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg events.Message, reason error)
}

// IngestConfig holds queue ingest configuration.
type IngestConfig struct {
	EventQueue      string        // Queue of serialized touchpoints (default: attribution:events)
	ConversionQueue string        // Queue of serialized conversions (default: attribution:conversions)
	Interval        time.Duration // Time between drains (default: 5s)
	PopTimeout      time.Duration // Wait for an empty queue before ending a drain (default: 1s)
}

// DefaultIngestConfig returns sensible defaults.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		EventQueue:      "attribution:events",
		ConversionQueue: "attribution:conversions",
		Interval:        5 * time.Second,
		PopTimeout:      time.Second,
	}
}

// IngestStats is a snapshot of ingest counters.
type IngestStats struct {
	Events       int64 `json:"events"`
	Conversions  int64 `json:"conversions"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Ingestor drains the raw touchpoint and conversion queues into the Tracker
// and Aggregator.
type Ingestor struct {
	cfg        IngestConfig
	queue      kv.Queue
	tracker    *Tracker
	aggregator *Aggregator
	dlq        DeadLetterer
	logger     *slog.Logger
	poller     *poller.Poller

	events       atomic.Int64
	conversions  atomic.Int64
	deadLettered atomic.Int64
}

// NewIngestor creates a new Ingestor.
func NewIngestor(cfg IngestConfig, queue kv.Queue, tracker *Tracker, aggregator *Aggregator, dlq DeadLetterer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Ingestor{
		cfg:        cfg,
		queue:      queue,
		tracker:    tracker,
		aggregator: aggregator,
		dlq:        dlq,
		logger:     logger,
	}
	in.poller = poller.New(poller.Config{
		Name:     "attribution ingestor",
		Interval: cfg.Interval,
	}, poller.TaskFunc(in.ingestCycle), logger)
	return in
}

// Start begins draining on the configured interval.
func (in *Ingestor) Start(ctx context.Context) error {
	return in.poller.Start(ctx)
}

// Stop stops the ingest loop.
func (in *Ingestor) Stop(ctx context.Context) error {
	return in.poller.Stop(ctx)
}

// Stats returns current metrics.
func (in *Ingestor) Stats() IngestStats {
	return IngestStats{
		Events:       in.events.Load(),
		Conversions:  in.conversions.Load(),
		DeadLettered: in.deadLettered.Load(),
	}
}

// Drain empties both queues concurrently and returns how many payloads each
// yielded.
func (in *Ingestor) Drain(ctx context.Context) (eventCount, conversionCount int) {
	var g errgroup.Group
	g.Go(func() error {
		eventCount = in.drainQueue(ctx, in.cfg.EventQueue, in.ingestEvent)
		return nil
	})
	g.Go(func() error {
		conversionCount = in.drainQueue(ctx, in.cfg.ConversionQueue, in.ingestConversion)
		return nil
	})
	_ = g.Wait()
	return eventCount, conversionCount
}

func (in *Ingestor) ingestCycle(ctx context.Context) {
	start := time.Now()
	before := in.Stats()

	nEvents, nConversions := in.Drain(ctx)
	if nEvents+nConversions == 0 {
		return
	}
	after := in.Stats()
	in.logger.Info("attribution ingest complete",
		"events", nEvents,
		"conversions", nConversions,
		"dead_lettered", after.DeadLettered-before.DeadLettered,
		"duration", time.Since(start),
	)
}

func (in *Ingestor) drainQueue(ctx context.Context, key string, handle func(context.Context, []byte) (string, error)) int {
	popped := 0
	for ctx.Err() == nil {
		payload, err := in.queue.Pop(ctx, key, in.cfg.PopTimeout)
		if err != nil {
			if !errors.Is(err, kv.ErrEmpty) && ctx.Err() == nil {
				in.logger.Warn("failed to pop attribution payload",
					"queue", key,
					"err", err,
				)
			}
			break
		}
		popped++
		if userID, err := handle(ctx, payload); err != nil {
			in.deadLetter(ctx, key, userID, payload, err)
		}
	}
	return popped
}

func (in *Ingestor) ingestEvent(ctx context.Context, payload []byte) (string, error) {
	var e model.AttributionEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return "", fmt.Errorf("decode attribution event: %w", err)
	}
	if err := in.tracker.TrackEvent(ctx, &e); err != nil {
		return e.UserID, fmt.Errorf("track event: %w", err)
	}
	in.events.Add(1)
	return e.UserID, nil
}

func (in *Ingestor) ingestConversion(ctx context.Context, payload []byte) (string, error) {
	var c model.ConversionEvent
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", fmt.Errorf("decode conversion event: %w", err)
	}
	if err := in.aggregator.TrackConversion(ctx, &c); err != nil {
		return c.UserID, fmt.Errorf("track conversion: %w", err)
	}
	in.conversions.Add(1)
	return c.UserID, nil
}

func (in *Ingestor) deadLetter(ctx context.Context, queue, key string, payload []byte, reason error) {
	in.deadLettered.Add(1)
	in.logger.Warn("dead-lettering attribution payload",
		"queue", queue,
		"err", reason,
	)
	if in.dlq == nil {
		return
	}
	in.dlq.DeadLetter(ctx, events.Message{
		Topic: queue,
		Key:   key,
		Value: payload,
		Time:  time.Now(),
	}, reason)
}
