package attribution

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
)

// Tracker records touchpoints.
type Tracker struct {
	cfg    Config
	store  kv.Store
	events EventStore
	pub    Publisher
	logger *slog.Logger

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() string
}

// NewTracker creates a new Tracker.
func NewTracker(cfg Config, store kv.Store, events EventStore, pub Publisher, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:    cfg,
		store:  store,
		events: events,
		pub:    pub,
		logger: logger,
		Now:    time.Now,
		NewID:  func() string { return uuid.New().String() },
	}
}

// TrackEvent records e. Missing id and timestamp are filled in. The event is
// durable once TrackEvent returns nil; path, counter and publish failures
// after that point are logged.
func (t *Tracker) TrackEvent(ctx context.Context, e *model.AttributionEvent) error {
	if e == nil {
		return &model.ValidationError{Field: "event", Reason: "is required"}
	}
	if e.UserID == "" {
		return &model.ValidationError{Field: "user_id", Reason: "is required"}
	}
	if e.EventType == "" {
		return &model.ValidationError{Field: "event_type", Reason: "is required"}
	}

	if e.ID == "" {
		e.ID = t.NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.Now()
	}

	if err := t.events.SaveEvent(ctx, e); err != nil {
		return model.StoreError("persist attribution event", err)
	}

	if err := t.store.PushCapped(ctx, pathKey(e.UserID), e.Touchpoint(), t.cfg.PathLength, t.cfg.Window); err != nil {
		t.logger.Warn("failed to update attribution path",
			"user_id", e.UserID,
			"event_id", e.ID,
			"err", err,
		)
	}

	if model.KnownEventType(e.EventType) {
		key := counterKey(eventCounters[e.EventType], e.ChannelID, model.Day(e.Timestamp))
		if err := t.store.Increment(ctx, t.cfg.CounterTTL, kv.IncrBy(key, 1)); err != nil {
			t.logger.Warn("failed to increment attribution counter",
				"key", key,
				"err", err,
			)
		}
	} else {
		t.logger.Warn("unknown attribution event type",
			"event_type", e.EventType,
			"event_id", e.ID,
		)
	}

	if t.pub != nil {
		envelope := model.AttributionEnvelope{Type: model.EnvelopeAttributionEvent, Event: e}
		if err := t.pub.Publish(t.cfg.Topic, e.UserID, envelope); err != nil {
			t.logger.Warn("failed to publish attribution event",
				"event_id", e.ID,
				"err", err,
			)
		}
	}

	return nil
}

// Path returns the user's recent touchpoints, newest first.
func (t *Tracker) Path(ctx context.Context, userID string) ([]string, error) {
	path, err := t.store.Range(ctx, pathKey(userID))
	if err != nil {
		return nil, model.StoreError("read attribution path", err)
	}
	return path, nil
}
