package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is the work done on every cycle.
type Task interface {
	RunCycle(ctx context.Context)
}

// TaskFunc is a function adapter for Task.
type TaskFunc func(ctx context.Context)

func (f TaskFunc) RunCycle(ctx context.Context) {
	f(ctx)
}

// Config holds poller configuration.
type Config struct {
	Name     string        // Component name used in logs
	Interval time.Duration // Time between cycles
}

// Poller periodically runs a Task.
type Poller struct {
	cfg    Config
	task   Task
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, task Task, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		task:   task,
		logger: logger,
	}
}

// Start begins the loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info(p.cfg.Name+" started", "interval", p.cfg.Interval)

	return nil
}

// Stop cancels the loop and waits for the running cycle to return.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info(p.cfg.Name + " stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start.
	p.task.RunCycle(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.task.RunCycle(p.ctx)
		}
	}
}

// Result counts the outcome of a ForEach fan-out.
type Result struct {
	Succeeded int64
	Failed    int64
}

// ForEach calls fn for every item with at most concurrency calls in flight.
// onErr, when non-nil, is called for each failure. Items not yet started when
// ctx is cancelled are skipped and counted in neither total.
func ForEach[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) error, onErr func(T, error)) Result {
	if concurrency < 1 {
		concurrency = 1
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var succeeded, failed atomic.Int64

loop:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		// Acquire semaphore slot.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(ctx, item); err != nil {
				failed.Add(1)
				if onErr != nil {
					onErr(item, err)
				}
				return
			}
			succeeded.Add(1)
		}(item)
	}

	wg.Wait()
	return Result{Succeeded: succeeded.Load(), Failed: failed.Load()}
}
