package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/poller"
)

const keyPrefix = "eligible_channels:"

// Source is the authoritative channel store.
type Source interface {
	// EligibleChannels returns active channels listing assetID and serving
	// region.
	EligibleChannels(ctx context.Context, assetID, region string) ([]*model.Channel, error)
}

// Config holds Channel Directory Cache configuration.
type Config struct {
	CacheTTL           time.Duration // Lifetime of a cached answer (default: 10m)
	RefreshInterval    time.Duration // Background refresh period (default: 5m)
	RefreshConcurrency int           // Max concurrent refresh queries (default: 5)
	LoadTimeout        time.Duration // Deadline of a shared miss query (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           10 * time.Minute,
		RefreshInterval:    5 * time.Minute,
		RefreshConcurrency: 5,
		LoadTimeout:        10 * time.Second,
	}
}

// lookup is one asset/region pair.
type lookup struct {
	AssetID string
	Region  string
}

func (l lookup) key() string {
	return keyPrefix + l.AssetID + ":" + l.Region
}

// Cache is a read-through cache of eligible channels.
type Cache struct {
	cfg    Config
	source Source
	store  kv.Store
	logger *slog.Logger

	group singleflight.Group

	// Keys requested since the last refresh cycle.
	mu        sync.Mutex
	requested map[lookup]struct{}

	poller *poller.Poller
}

// New creates a new Cache.
func New(cfg Config, source Source, store kv.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}
	c := &Cache{
		cfg:       cfg,
		source:    source,
		store:     store,
		logger:    logger,
		requested: make(map[lookup]struct{}),
	}
	c.poller = poller.New(poller.Config{
		Name:     "channel directory refresh",
		Interval: cfg.RefreshInterval,
	}, poller.TaskFunc(c.refreshCycle), logger)
	return c
}

// EligibleChannels returns the channels that can serve assetID in region.
// Store and source failures are returned as model.BackingStoreError.
func (c *Cache) EligibleChannels(ctx context.Context, assetID, region string) ([]*model.Channel, error) {
	l := lookup{AssetID: assetID, Region: region}
	c.markRequested(l)

	channels, hit, err := c.readCache(ctx, l)
	if err != nil {
		return nil, err
	}
	if hit {
		return channels, nil
	}

	// The query is shared by every caller waiting on the key, so it must not
	// die with the first caller's context.
	ch := c.group.DoChan(l.key(), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LoadTimeout)
		defer cancel()
		return c.load(lctx, l)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*model.Channel), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readCache returns the cached answer for l. A corrupt entry counts as a miss.
func (c *Cache) readCache(ctx context.Context, l lookup) ([]*model.Channel, bool, error) {
	data, err := c.store.Get(ctx, l.key())
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, model.StoreError("read channel cache", err)
	}

	var channels []*model.Channel
	if err := json.Unmarshal(data, &channels); err != nil {
		c.logger.Warn("discarding corrupt channel cache entry",
			"key", l.key(),
			"err", err,
		)
		return nil, false, nil
	}
	return channels, true, nil
}

// load queries the source and writes the answer back to the cache.
func (c *Cache) load(ctx context.Context, l lookup) ([]*model.Channel, error) {
	found, err := c.source.EligibleChannels(ctx, l.AssetID, l.Region)
	if err != nil {
		return nil, model.StoreError("query eligible channels", err)
	}

	channels := make([]*model.Channel, 0, len(found))
	for _, ch := range found {
		if ch.Matchable() && ch.SupportsAsset(l.AssetID) && ch.SupportsRegion(l.Region) {
			channels = append(channels, ch)
		}
	}

	data, err := json.Marshal(channels)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, l.key(), data, c.cfg.CacheTTL); err != nil {
		// The answer is still correct; the next call will query again.
		c.logger.Warn("failed to write channel cache",
			"key", l.key(),
			"err", err,
		)
	}
	return channels, nil
}

func (c *Cache) markRequested(l lookup) {
	c.mu.Lock()
	c.requested[l] = struct{}{}
	c.mu.Unlock()
}

// takeRequested returns and clears the keys requested since the last call.
func (c *Cache) takeRequested() []lookup {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]lookup, 0, len(c.requested))
	for l := range c.requested {
		keys = append(keys, l)
	}
	clear(c.requested)
	return keys
}

// Refresh re-queries every key requested since the previous refresh and
// rewrites its cache entry.
func (c *Cache) Refresh(ctx context.Context) poller.Result {
	keys := c.takeRequested()
	return poller.ForEach(ctx, keys, c.cfg.RefreshConcurrency, func(ctx context.Context, l lookup) error {
		_, err := c.load(ctx, l)
		return err
	}, func(l lookup, err error) {
		c.logger.Warn("failed to refresh eligible channels",
			"asset_id", l.AssetID,
			"region", l.Region,
			"err", err,
		)
	})
}

func (c *Cache) refreshCycle(ctx context.Context) {
	start := time.Now()
	res := c.Refresh(ctx)
	if res.Succeeded+res.Failed == 0 {
		c.logger.Debug("no channel lookups to refresh")
		return
	}
	c.logger.Info("directory refresh complete",
		"refreshed", res.Succeeded,
		"errors", res.Failed,
		"duration", time.Since(start),
	)
}

// Start begins the background refresh loop.
func (c *Cache) Start(ctx context.Context) error {
	return c.poller.Start(ctx)
}

// Stop stops the background refresh loop.
func (c *Cache) Stop(ctx context.Context) error {
	return c.poller.Stop(ctx)
}
