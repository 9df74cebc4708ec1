package attribution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rwa-platform/channel-service/internal/events"
	"github.com/rwa-platform/channel-service/internal/model"
)

// memoryDB implements every store interface of the package.
type memoryDB struct {
	mu          sync.Mutex
	events      []*model.AttributionEvent
	conversions []*model.ConversionEvent
	stats       map[string]*model.AttributionStats
	channels    []string
	failSave    error
}

func newMemoryDB(channels ...string) *memoryDB {
	return &memoryDB{stats: make(map[string]*model.AttributionStats), channels: channels}
}

func (db *memoryDB) SaveEvent(_ context.Context, e *model.AttributionEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failSave != nil {
		return db.failSave
	}
	db.events = append(db.events, e)
	return nil
}

func (db *memoryDB) SaveConversion(_ context.Context, c *model.ConversionEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failSave != nil {
		return db.failSave
	}
	db.conversions = append(db.conversions, c)
	return nil
}

func (db *memoryDB) ListConversions(_ context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*model.ConversionEvent
	for _, c := range db.conversions {
		if channelID != "" && c.ChannelID != channelID {
			continue
		}
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (db *memoryDB) UpsertStats(_ context.Context, s *model.AttributionStats) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.stats[s.ChannelID+"|"+s.Period] = s
	return nil
}

func (db *memoryDB) GetStats(_ context.Context, channelID, period string) (*model.AttributionStats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stats[channelID+"|"+period]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s, nil
}

func (db *memoryDB) ActiveChannelIDs(context.Context) ([]string, error) {
	return db.channels, nil
}

func (db *memoryDB) eventCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.events)
}

type published struct {
	topic string
	key   string
	value any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	dead []error
	err  error
}

func (p *recordingPublisher) Publish(topic, key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic, key, value})
	return nil
}

func (p *recordingPublisher) DeadLetter(_ context.Context, _ events.Message, reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead = append(p.dead, reason)
}

func (p *recordingPublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func (p *recordingPublisher) deadLetters() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.dead...)
}

type recordingFeed struct {
	mu  sync.Mutex
	got []any
}

func (f *recordingFeed) Broadcast(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, v)
}

var errSave = errors.New("connection refused")
