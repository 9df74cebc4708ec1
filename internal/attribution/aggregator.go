package attribution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/poller"
)

// Aggregator records conversions and maintains daily stats.
type Aggregator struct {
	cfg         Config
	store       kv.Store
	conversions ConversionStore
	stats       StatsStore
	channels    ChannelLister
	pub         Publisher
	live        Broadcaster
	logger      *slog.Logger
	poller      *poller.Poller

	mu         sync.Mutex
	lastRollup time.Time

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() string
}

// NewAggregator creates a new Aggregator. live may be nil.
func NewAggregator(
	cfg Config,
	store kv.Store,
	conversions ConversionStore,
	stats StatsStore,
	channels ChannelLister,
	pub Publisher,
	live Broadcaster,
	logger *slog.Logger,
) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		cfg:         cfg,
		store:       store,
		conversions: conversions,
		stats:       stats,
		channels:    channels,
		pub:         pub,
		live:        live,
		logger:      logger,
		Now:         time.Now,
		NewID:       func() string { return uuid.New().String() },
	}
	a.poller = poller.New(poller.Config{
		Name:     "attribution rollup",
		Interval: cfg.RollupInterval,
	}, poller.TaskFunc(a.rollupCycle), logger)
	return a
}

// TrackConversion credits c to the user's current attribution path and
// records it. The path is copied into c.AttributionPath at this moment and
// does not change afterwards.
func (a *Aggregator) TrackConversion(ctx context.Context, c *model.ConversionEvent) error {
	if c == nil {
		return &model.ValidationError{Field: "conversion", Reason: "is required"}
	}
	if c.UserID == "" {
		return &model.ValidationError{Field: "user_id", Reason: "is required"}
	}
	if c.ChannelID == "" {
		return &model.ValidationError{Field: "channel_id", Reason: "is required"}
	}

	if c.ID == "" {
		c.ID = a.NewID()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = a.Now()
	}

	path, err := a.store.Range(ctx, pathKey(c.UserID))
	if err != nil {
		a.logger.Warn("failed to read attribution path",
			"user_id", c.UserID,
			"err", err,
		)
	}
	c.AttributionPath = make([]string, 0, len(path))
	for _, entry := range path {
		if _, _, _, ok := model.ParseTouchpoint(entry); !ok {
			a.logger.Warn("dropping malformed touchpoint",
				"user_id", c.UserID,
				"entry", entry,
			)
			continue
		}
		c.AttributionPath = append(c.AttributionPath, entry)
	}

	if err := a.conversions.SaveConversion(ctx, c); err != nil {
		return model.StoreError("persist conversion", err)
	}

	day := model.Day(c.Timestamp)
	err = a.store.Increment(ctx, a.cfg.CounterTTL,
		kv.IncrBy(counterKey(counterConversions, c.ChannelID, day), 1),
		kv.IncrByFloat(counterKey(counterRevenue, c.ChannelID, day), c.Revenue),
	)
	if err != nil {
		a.logger.Warn("failed to increment conversion counters",
			"channel_id", c.ChannelID,
			"day", day,
			"err", err,
		)
	}

	envelope := model.AttributionEnvelope{Type: model.EnvelopeConversionEvent, Conversion: c}
	if a.pub != nil {
		if err := a.pub.Publish(a.cfg.Topic, c.UserID, envelope); err != nil {
			a.logger.Warn("failed to publish conversion event",
				"conversion_id", c.ID,
				"err", err,
			)
		}
	}
	if a.live != nil {
		a.live.Broadcast(envelope)
	}

	return nil
}

// Counters reads the live counters of channelID for day.
func (a *Aggregator) Counters(ctx context.Context, channelID, day string) (model.DailyCounters, error) {
	var c model.DailyCounters
	ints := []struct {
		counter string
		dst     *int64
	}{
		{counterClicks, &c.Clicks},
		{counterViews, &c.Views},
		{counterRedirects, &c.Redirects},
		{counterSignups, &c.Signups},
		{counterConversions, &c.Conversions},
	}
	for _, f := range ints {
		n, err := kv.GetInt(ctx, a.store, counterKey(f.counter, channelID, day))
		if err != nil {
			return model.DailyCounters{}, model.StoreError("read "+f.counter+" counter", err)
		}
		*f.dst = n
	}

	revenue, err := kv.GetFloat(ctx, a.store, counterKey(counterRevenue, channelID, day))
	if err != nil {
		return model.DailyCounters{}, model.StoreError("read revenue counter", err)
	}
	c.Revenue = revenue
	return c, nil
}

// RollupChannel computes and persists the stats of channelID for day.
func (a *Aggregator) RollupChannel(ctx context.Context, channelID, day string) (*model.AttributionStats, error) {
	counters, err := a.Counters(ctx, channelID, day)
	if err != nil {
		return nil, err
	}
	stats := counters.Stats(channelID, day, a.Now())
	if err := a.stats.UpsertStats(ctx, stats); err != nil {
		return nil, model.StoreError("upsert attribution stats", err)
	}
	return stats, nil
}

// Rollup persists today's stats for every active channel. When the previous
// rollup ran on an earlier day, that day is rolled up again so counts that
// arrived after its last cycle are kept. Per-channel failures are logged and
// do not stop the cycle.
func (a *Aggregator) Rollup(ctx context.Context) (poller.Result, error) {
	ids, err := a.channels.ActiveChannelIDs(ctx)
	if err != nil {
		return poller.Result{}, model.StoreError("list active channels", err)
	}

	days := a.rollupDays(a.Now())
	res := poller.ForEach(ctx, ids, a.cfg.RollupConcurrency, func(ctx context.Context, id string) error {
		var errs []error
		for _, day := range days {
			if _, err := a.RollupChannel(ctx, id, day); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, func(id string, err error) {
		a.logger.Warn("failed to roll up attribution stats",
			"channel_id", id,
			"err", err,
		)
	})
	return res, nil
}

// rollupDays returns the days a rollup at now covers: today, plus the day of
// the previous rollup if it differs. Before the first rollup the previous
// one is assumed to be one interval ago.
func (a *Aggregator) rollupDays(now time.Time) []string {
	a.mu.Lock()
	prev := a.lastRollup
	a.lastRollup = now
	a.mu.Unlock()

	if prev.IsZero() {
		prev = now.Add(-a.cfg.RollupInterval)
	}
	days := []string{model.Day(now)}
	if d := model.Day(prev); d < days[0] {
		days = append(days, d)
	}
	return days
}

func (a *Aggregator) rollupCycle(ctx context.Context) {
	start := time.Now()
	res, err := a.Rollup(ctx)
	if err != nil {
		a.logger.Error("attribution rollup failed", "err", err)
		return
	}
	a.logger.Info("attribution rollup complete",
		"channels", res.Succeeded+res.Failed,
		"updated", res.Succeeded,
		"errors", res.Failed,
		"duration", time.Since(start),
	)
}

// Stats returns the persisted snapshot of channelID for period, or
// model.ErrNotFound.
func (a *Aggregator) Stats(ctx context.Context, channelID, period string) (*model.AttributionStats, error) {
	if channelID == "" {
		return nil, &model.ValidationError{Field: "channel_id", Reason: "is required"}
	}
	return a.stats.GetStats(ctx, channelID, period)
}

// Conversions lists conversions with start <= timestamp <= end. An empty
// channelID lists every channel.
func (a *Aggregator) Conversions(ctx context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error) {
	if end.Before(start) {
		return nil, &model.ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	list, err := a.conversions.ListConversions(ctx, channelID, start, end)
	if err != nil {
		return nil, model.StoreError("list conversions", err)
	}
	return list, nil
}

// Start begins the rollup loop. The first rollup runs immediately.
func (a *Aggregator) Start(ctx context.Context) error {
	return a.poller.Start(ctx)
}

// Stop stops the rollup loop.
func (a *Aggregator) Stop(ctx context.Context) error {
	return a.poller.Stop(ctx)
}
