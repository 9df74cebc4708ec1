package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/ttl"
)

// mockSource returns a fixed list of channels.
type mockSource struct {
	mu       sync.Mutex
	channels []*model.Channel
	err      error
	calls    atomic.Int32
	release  chan struct{} // when set, queries block until closed
}

func (m *mockSource) EligibleChannels(ctx context.Context, assetID, region string) ([]*model.Channel, error) {
	m.calls.Add(1)
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels, m.err
}

func (m *mockSource) set(channels ...*model.Channel) {
	m.mu.Lock()
	m.channels = channels
	m.mu.Unlock()
}

func channel(id string) *model.Channel {
	return &model.Channel{
		ID:              id,
		Status:          model.ChannelStatusActive,
		IsActive:        true,
		SupportedAssets: []model.ChannelAsset{{AssetID: "asset-1"}},
		Compliance:      model.ChannelCompliance{SupportedRegions: []string{"US", "EU"}},
	}
}

func newTestCache(t *testing.T, src Source) (*Cache, *kv.MemoryStore, *ttl.ManualClock) {
	t.Helper()
	clock := ttl.NewManualClock(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	store := kv.NewMemoryStore(clock.Now)
	cfg := DefaultConfig()
	return New(cfg, src, store, nil), store, clock
}

func ids(channels []*model.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = ch.ID
	}
	return out
}

func TestEligibleChannels_MissThenHit(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{}
	src.set(channel("a"), channel("b"))
	c, _, _ := newTestCache(t, src)

	for i := 0; i < 3; i++ {
		got, err := c.EligibleChannels(ctx, "asset-1", "US")
		if err != nil {
			t.Fatalf("EligibleChannels failed: %v", err)
		}
		if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
			t.Errorf("EligibleChannels = %v, want [a b]", ids(got))
		}
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("source calls = %d, want 1", got)
	}
}

func TestEligibleChannels_TTL(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{}
	src.set(channel("a"))
	c, _, clock := newTestCache(t, src)

	if _, err := c.EligibleChannels(ctx, "asset-1", "US"); err != nil {
		t.Fatalf("EligibleChannels failed: %v", err)
	}

	// Deactivated upstream; still served from cache until the TTL lapses.
	src.set()
	clock.Advance(9 * time.Minute)
	got, _ := c.EligibleChannels(ctx, "asset-1", "US")
	if len(got) != 1 {
		t.Errorf("before TTL: got %v, want cached [a]", ids(got))
	}

	clock.Advance(time.Minute)
	got, _ = c.EligibleChannels(ctx, "asset-1", "US")
	if len(got) != 0 {
		t.Errorf("after TTL: got %v, want []", ids(got))
	}
	if calls := src.calls.Load(); calls != 2 {
		t.Errorf("source calls = %d, want 2", calls)
	}
}

func TestEligibleChannels_FiltersIneligible(t *testing.T) {
	inactive := channel("inactive")
	inactive.IsActive = false
	suspended := channel("suspended")
	suspended.Status = "suspended"
	otherAsset := channel("other-asset")
	otherAsset.SupportedAssets = []model.ChannelAsset{{AssetID: "asset-2"}}
	otherRegion := channel("other-region")
	otherRegion.Compliance.SupportedRegions = []string{"JP"}

	src := &mockSource{}
	src.set(channel("ok"), inactive, suspended, otherAsset, otherRegion)
	c, _, _ := newTestCache(t, src)

	got, err := c.EligibleChannels(context.Background(), "asset-1", "US")
	if err != nil {
		t.Fatalf("EligibleChannels failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ok" {
		t.Errorf("EligibleChannels = %v, want [ok]", ids(got))
	}
}

func TestEligibleChannels_SourceError(t *testing.T) {
	src := &mockSource{err: errors.New("connection reset")}
	c, _, _ := newTestCache(t, src)

	_, err := c.EligibleChannels(context.Background(), "asset-1", "US")
	if !errors.Is(err, model.ErrBackingStore) {
		t.Errorf("err = %v, want ErrBackingStore", err)
	}
}

func TestEligibleChannels_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{}
	src.set(channel("a"))
	c, store, _ := newTestCache(t, src)

	store.Set(ctx, "eligible_channels:asset-1:US", []byte("{not json"), time.Hour)

	got, err := c.EligibleChannels(ctx, "asset-1", "US")
	if err != nil {
		t.Fatalf("EligibleChannels failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("EligibleChannels = %v, want [a]", ids(got))
	}
	if calls := src.calls.Load(); calls != 1 {
		t.Errorf("source calls = %d, want 1", calls)
	}
}

func TestEligibleChannels_CoalescesMisses(t *testing.T) {
	src := &mockSource{release: make(chan struct{})}
	src.set(channel("a"))
	c, _, _ := newTestCache(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.EligibleChannels(context.Background(), "asset-1", "US"); err != nil {
				t.Errorf("EligibleChannels failed: %v", err)
			}
		}()
	}

	// Let every caller reach the in-flight query.
	time.Sleep(100 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if calls := src.calls.Load(); calls != 1 {
		t.Errorf("source calls = %d, want 1", calls)
	}
}

func TestEligibleChannels_SharedLoadOutlivesCaller(t *testing.T) {
	src := &mockSource{release: make(chan struct{})}
	src.set(channel("a"))
	c, _, _ := newTestCache(t, src)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.EligibleChannels(firstCtx, "asset-1", "US")
		firstErr <- err
	}()
	waitFor(t, func() bool { return src.calls.Load() == 1 })

	type result struct {
		channels []*model.Channel
		err      error
	}
	second := make(chan result, 1)
	go func() {
		got, err := c.EligibleChannels(context.Background(), "asset-1", "US")
		second <- result{got, err}
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first caller err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first caller did not return after cancel")
	}

	close(src.release)
	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("second caller failed: %v", r.err)
		}
		if len(r.channels) != 1 || r.channels[0].ID != "a" {
			t.Errorf("second caller got %v, want [a]", ids(r.channels))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	if calls := src.calls.Load(); calls != 1 {
		t.Errorf("source calls = %d, want 1", calls)
	}
	if _, err := c.EligibleChannels(context.Background(), "asset-1", "US"); err != nil {
		t.Errorf("cached lookup failed: %v", err)
	}
	if calls := src.calls.Load(); calls != 1 {
		t.Errorf("source calls after cached lookup = %d, want 1", calls)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	src := &mockSource{}
	src.set(channel("a"))
	c, _, _ := newTestCache(t, src)

	if _, err := c.EligibleChannels(ctx, "asset-1", "US"); err != nil {
		t.Fatalf("EligibleChannels failed: %v", err)
	}

	src.set(channel("a"), channel("b"))
	res := c.Refresh(ctx)
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Errorf("Refresh() = %+v, want 1 refreshed", res)
	}

	got, _ := c.EligibleChannels(ctx, "asset-1", "US")
	if len(got) != 2 {
		t.Errorf("after refresh: %v, want [a b]", ids(got))
	}

	// The lookup above marked the key again; nothing else is pending.
	if res := c.Refresh(ctx); res.Succeeded != 1 {
		t.Errorf("second Refresh() = %+v, want 1 refreshed", res)
	}
	if res := c.Refresh(ctx); res.Succeeded+res.Failed != 0 {
		t.Errorf("idle Refresh() = %+v, want nothing", res)
	}
}

func TestStartStop(t *testing.T) {
	src := &mockSource{}
	c := New(Config{CacheTTL: time.Minute, RefreshInterval: 10 * time.Millisecond, RefreshConcurrency: 2}, src, kv.NewMemoryStore(nil), nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
