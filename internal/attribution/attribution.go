package attribution

import (
	"context"
	"time"

	"github.com/rwa-platform/channel-service/internal/model"
)

const pathPrefix = "attribution_path:"

// Counter names.
const (
	counterClicks      = "clicks"
	counterViews       = "views"
	counterRedirects   = "redirects"
	counterSignups     = "signups"
	counterConversions = "conversions"
	counterRevenue     = "revenue"
)

// EventStore persists touchpoints.
type EventStore interface {
	SaveEvent(ctx context.Context, e *model.AttributionEvent) error
}

// ConversionStore persists and lists conversions.
type ConversionStore interface {
	SaveConversion(ctx context.Context, c *model.ConversionEvent) error
	ListConversions(ctx context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error)
}

// StatsStore persists daily rollups.
type StatsStore interface {
	UpsertStats(ctx context.Context, s *model.AttributionStats) error
	// GetStats returns model.ErrNotFound when no snapshot exists.
	GetStats(ctx context.Context, channelID, period string) (*model.AttributionStats, error)
}

// ChannelLister lists the channels to roll up.
type ChannelLister interface {
	ActiveChannelIDs(ctx context.Context) ([]string, error)
}

// Publisher delivers events asynchronously.
type Publisher interface {
	Publish(topic, key string, value any) error
}

// Broadcaster pushes events to live subscribers.
type Broadcaster interface {
	Broadcast(v any)
}

// Config holds tracker and aggregator configuration.
type Config struct {
	Window            time.Duration // Path TTL, refreshed on every touchpoint (default: 24h)
	PathLength        int           // Max touchpoints kept per user (default: 10)
	CounterTTL        time.Duration // Daily counter TTL (default: 30 days)
	Topic             string        // Topic for attribution envelopes (default: attribution-events)
	RollupInterval    time.Duration // Time between rollups (default: 1h)
	RollupConcurrency int           // Concurrent channel rollups (default: 10)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:            24 * time.Hour,
		PathLength:        10,
		CounterTTL:        30 * 24 * time.Hour,
		Topic:             "attribution-events",
		RollupInterval:    time.Hour,
		RollupConcurrency: 10,
	}
}

func pathKey(userID string) string {
	return pathPrefix + userID
}

func counterKey(counter, channelID, day string) string {
	return counter + ":" + channelID + ":" + day
}

// eventCounters maps each known touchpoint type to its counter.
var eventCounters = map[string]string{
	model.EventClick:    counterClicks,
	model.EventView:     counterViews,
	model.EventRedirect: counterRedirects,
	model.EventSignup:   counterSignups,
}
