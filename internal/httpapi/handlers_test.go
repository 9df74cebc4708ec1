package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rwa-platform/channel-service/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errMockStore = model.StoreError("query", errors.New("connection refused"))

// MockMatcher implements Matcher for testing.
type MockMatcher struct {
	MatchFunc          func(ctx context.Context, req *model.MatchRequest) ([]*model.MatchResult, error)
	QuoteFunc          func(ctx context.Context, channelID string, amount float64) (*model.FeeEstimate, error)
	CreateRedirectFunc func(ctx context.Context, channelID string, req *model.MatchRequest) (*model.RedirectInfo, error)
}

func (m *MockMatcher) Match(ctx context.Context, req *model.MatchRequest) ([]*model.MatchResult, error) {
	if m.MatchFunc != nil {
		return m.MatchFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockMatcher) Quote(ctx context.Context, channelID string, amount float64) (*model.FeeEstimate, error) {
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, channelID, amount)
	}
	return &model.FeeEstimate{Currency: "USD"}, nil
}

func (m *MockMatcher) CreateRedirect(ctx context.Context, channelID string, req *model.MatchRequest) (*model.RedirectInfo, error) {
	if m.CreateRedirectFunc != nil {
		return m.CreateRedirectFunc(ctx, channelID, req)
	}
	return &model.RedirectInfo{URL: "https://example.com?redirect_id=r1", Method: "GET"}, nil
}

// MockRedirects implements Redirects for testing.
type MockRedirects struct {
	ResolveFunc func(ctx context.Context, id string) (*model.RedirectRecord, error)
}

func (m *MockRedirects) Resolve(ctx context.Context, id string) (*model.RedirectRecord, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, id)
	}
	return nil, model.ErrNotFound
}

// MockChannels implements Channels for testing.
type MockChannels struct {
	GetFunc func(ctx context.Context, id string) (*model.Channel, error)
}

func (m *MockChannels) Get(ctx context.Context, id string) (*model.Channel, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, model.ErrNotFound
}

// MockTracker implements Tracker for testing.
type MockTracker struct {
	TrackEventFunc func(ctx context.Context, e *model.AttributionEvent) error
}

func (m *MockTracker) TrackEvent(ctx context.Context, e *model.AttributionEvent) error {
	if m.TrackEventFunc != nil {
		return m.TrackEventFunc(ctx, e)
	}
	return nil
}

// MockAggregator implements Aggregator for testing.
type MockAggregator struct {
	TrackConversionFunc func(ctx context.Context, c *model.ConversionEvent) error
	StatsFunc           func(ctx context.Context, channelID, period string) (*model.AttributionStats, error)
	ConversionsFunc     func(ctx context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error)
}

func (m *MockAggregator) TrackConversion(ctx context.Context, c *model.ConversionEvent) error {
	if m.TrackConversionFunc != nil {
		return m.TrackConversionFunc(ctx, c)
	}
	return nil
}

func (m *MockAggregator) Stats(ctx context.Context, channelID, period string) (*model.AttributionStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, channelID, period)
	}
	return nil, model.ErrNotFound
}

func (m *MockAggregator) Conversions(ctx context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error) {
	if m.ConversionsFunc != nil {
		return m.ConversionsFunc(ctx, channelID, start, end)
	}
	return nil, nil
}

func testDeps() Deps {
	return Deps{
		Matcher:    &MockMatcher{},
		Redirects:  &MockRedirects{},
		Channels:   &MockChannels{},
		Tracker:    &MockTracker{},
		Aggregator: &MockAggregator{},
	}
}

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestRouter(deps Deps) *gin.Engine {
	return NewRouter(Config{}, deps, discardLogger())
}

// newFixedRouter registers the clock-dependent routes with a fixed clock.
func newFixedRouter(deps Deps) *gin.Engine {
	h := &handlers{deps: deps, logger: discardLogger(), now: func() time.Time { return fixedNow }}
	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.GET("/attribution/stats", h.stats)
	v1.GET("/attribution/conversions", h.conversions)
	r.GET("/health", h.health)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestMatch(t *testing.T) {
	validBody := map[string]any{"asset_id": "RWA-1", "user_region": "US", "amount": 1000}

	tests := []struct {
		name      string
		body      any
		matchErr  error
		results   []*model.MatchResult
		wantCode  int
		wantError string
		wantCount float64
	}{
		{
			name:      "ranked results",
			body:      validBody,
			results:   []*model.MatchResult{{ChannelID: "a", MatchScore: 0.9}, {ChannelID: "b", MatchScore: 0.7}},
			wantCode:  http.StatusOK,
			wantCount: 2,
		},
		{
			name:      "empty after threshold",
			body:      validBody,
			wantCode:  http.StatusOK,
			wantCount: 0,
		},
		{
			name:      "malformed body",
			body:      "{not json",
			wantCode:  http.StatusBadRequest,
			wantError: "Invalid request body",
		},
		{
			name:      "validation error",
			body:      validBody,
			matchErr:  &model.ValidationError{Field: "asset_id", Reason: "is required"},
			wantCode:  http.StatusBadRequest,
			wantError: "Invalid request",
		},
		{
			name:      "no eligible channels",
			body:      validBody,
			matchErr:  &model.EligibilityError{AssetID: "RWA-1", Region: "US"},
			wantCode:  http.StatusUnprocessableEntity,
			wantError: "No eligible channels",
		},
		{
			name:      "backing store",
			body:      validBody,
			matchErr:  errMockStore,
			wantCode:  http.StatusInternalServerError,
			wantError: "Failed to match channels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			deps.Matcher = &MockMatcher{
				MatchFunc: func(_ context.Context, req *model.MatchRequest) ([]*model.MatchResult, error) {
					if req.AssetID != "RWA-1" || req.Amount != 1000 {
						t.Errorf("request = %+v", req)
					}
					return tt.results, tt.matchErr
				},
			}

			w := do(t, newTestRouter(deps), http.MethodPost, "/api/v1/matching/match", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantError != "" {
				if resp["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", resp["error"], tt.wantError)
				}
				return
			}
			if resp["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", resp["count"], tt.wantCount)
			}
			if _, ok := resp["data"].([]any); !ok {
				t.Errorf("data = %#v, want array", resp["data"])
			}
		})
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		quoteErr error
		wantCode int
	}{
		{"ok", "?channel_id=ch-1&amount=10000", nil, http.StatusOK},
		{"missing channel", "?amount=10", nil, http.StatusBadRequest},
		{"bad amount", "?channel_id=ch-1&amount=ten", nil, http.StatusBadRequest},
		{"negative amount", "?channel_id=ch-1&amount=-1", nil, http.StatusBadRequest},
		{"NaN amount", "?channel_id=ch-1&amount=NaN", nil, http.StatusBadRequest},
		{"infinite amount", "?channel_id=ch-1&amount=Inf", nil, http.StatusBadRequest},
		{"negative infinite amount", "?channel_id=ch-1&amount=-Inf", nil, http.StatusBadRequest},
		{"unknown channel", "?channel_id=nope&amount=1", model.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			deps.Matcher = &MockMatcher{
				QuoteFunc: func(_ context.Context, channelID string, amount float64) (*model.FeeEstimate, error) {
					if tt.quoteErr != nil {
						return nil, tt.quoteErr
					}
					return &model.FeeEstimate{TotalFee: 55, Currency: "USD"}, nil
				},
			}
			w := do(t, newTestRouter(deps), http.MethodGet, "/api/v1/matching/quote"+tt.query, nil)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestCreateRedirect(t *testing.T) {
	deps := testDeps()
	var gotChannel, gotUser string
	deps.Matcher = &MockMatcher{
		CreateRedirectFunc: func(_ context.Context, channelID string, req *model.MatchRequest) (*model.RedirectInfo, error) {
			gotChannel, gotUser = channelID, req.UserID
			return &model.RedirectInfo{URL: "https://venue.example?redirect_id=r1", Method: "GET"}, nil
		},
	}
	r := newTestRouter(deps)

	w := do(t, r, http.MethodPost, "/api/v1/matching/redirect", map[string]any{
		"channel_id": "ch-1",
		"user_id":    "u1",
		"asset_id":   "RWA-1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if gotChannel != "ch-1" || gotUser != "u1" {
		t.Errorf("CreateRedirect(%q, user %q), want ch-1 and u1", gotChannel, gotUser)
	}

	w = do(t, r, http.MethodPost, "/api/v1/matching/redirect", map[string]any{"user_id": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing channel_id status = %d, want 400", w.Code)
	}
}

func TestGetRedirect(t *testing.T) {
	deps := testDeps()
	deps.Redirects = &MockRedirects{
		ResolveFunc: func(_ context.Context, id string) (*model.RedirectRecord, error) {
			switch id {
			case "live":
				return &model.RedirectRecord{RedirectID: id, ChannelID: "ch-1"}, nil
			case "broken":
				return nil, errMockStore
			}
			return nil, model.ErrNotFound
		},
	}
	r := newTestRouter(deps)

	tests := []struct {
		id        string
		wantCode  int
		wantError string
	}{
		{"live", http.StatusOK, ""},
		{"expired", http.StatusNotFound, "Redirect not found or expired"},
		{"broken", http.StatusInternalServerError, "Failed to resolve redirect"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := do(t, r, http.MethodGet, "/api/v1/matching/redirect/"+tt.id, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantError != "" {
				if got := decode(t, w)["error"]; got != tt.wantError {
					t.Errorf("error = %v, want %q", got, tt.wantError)
				}
			}
		})
	}
}

func TestTrack_FillsRequestContext(t *testing.T) {
	deps := testDeps()
	var got *model.AttributionEvent
	deps.Tracker = &MockTracker{
		TrackEventFunc: func(_ context.Context, e *model.AttributionEvent) error {
			got = e
			return nil
		},
	}

	w := do(t, newTestRouter(deps), http.MethodPost, "/api/v1/attribution/track",
		map[string]any{"user_id": "u1", "event_type": "click", "channel_id": "ch-1", "user_agent": "spoofed"},
		"User-Agent", "test-agent/1.0",
		"Referer", "https://ref.example",
	)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if got == nil {
		t.Fatal("TrackEvent not called")
	}
	if got.UserAgent != "test-agent/1.0" || got.Referrer != "https://ref.example" {
		t.Errorf("UserAgent/Referrer = %q/%q, want request headers", got.UserAgent, got.Referrer)
	}
	if got.IPAddress == "" {
		t.Error("IPAddress not filled")
	}
	if msg := decode(t, w)["message"]; msg != "Attribution event tracked successfully" {
		t.Errorf("message = %v", msg)
	}
}

func TestTrack_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &model.ValidationError{Field: "user_id", Reason: "is required"}, http.StatusBadRequest},
		{"store", errMockStore, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			deps.Tracker = &MockTracker{
				TrackEventFunc: func(context.Context, *model.AttributionEvent) error { return tt.err },
			}
			w := do(t, newTestRouter(deps), http.MethodPost, "/api/v1/attribution/track", map[string]any{"event_type": "click"})
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestTrackConversion_IgnoresClientPath(t *testing.T) {
	deps := testDeps()
	deps.Aggregator = &MockAggregator{
		TrackConversionFunc: func(_ context.Context, c *model.ConversionEvent) error {
			if c.AttributionPath != nil {
				t.Errorf("AttributionPath = %v, want nil before tracking", c.AttributionPath)
			}
			c.AttributionPath = []string{"ch-1:click:1"}
			return nil
		},
	}

	w := do(t, newTestRouter(deps), http.MethodPost, "/api/v1/attribution/conversions", map[string]any{
		"user_id":          "u1",
		"channel_id":       "ch-1",
		"revenue":          5,
		"attribution_path": []string{"forged"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
}

func TestStats(t *testing.T) {
	deps := testDeps()
	var gotPeriod string
	deps.Aggregator = &MockAggregator{
		StatsFunc: func(_ context.Context, channelID, period string) (*model.AttributionStats, error) {
			gotPeriod = period
			if channelID == "missing" {
				return nil, model.ErrNotFound
			}
			return &model.AttributionStats{ChannelID: channelID, Period: period}, nil
		},
	}
	r := newFixedRouter(deps)

	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantPeriod string
		wantError  string
	}{
		{"default period is today", "?channel_id=ch-1", http.StatusOK, "2024-01-15", ""},
		{"explicit period", "?channel_id=ch-1&period=2024-01-10", http.StatusOK, "2024-01-10", ""},
		{"missing channel", "", http.StatusBadRequest, "", "channel_id is required"},
		{"bad period", "?channel_id=ch-1&period=yesterday", http.StatusBadRequest, "", "Invalid period format, use YYYY-MM-DD"},
		{"not found", "?channel_id=missing", http.StatusNotFound, "", "Attribution stats not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPeriod = ""
			w := do(t, r, http.MethodGet, "/api/v1/attribution/stats"+tt.query, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantPeriod != "" && gotPeriod != tt.wantPeriod {
				t.Errorf("period = %q, want %q", gotPeriod, tt.wantPeriod)
			}
			if tt.wantError != "" {
				if got := decode(t, w)["error"]; got != tt.wantError {
					t.Errorf("error = %v, want %q", got, tt.wantError)
				}
			}
		})
	}
}

func TestConversions(t *testing.T) {
	deps := testDeps()
	var gotChannel string
	var gotStart, gotEnd time.Time
	deps.Aggregator = &MockAggregator{
		ConversionsFunc: func(_ context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error) {
			gotChannel, gotStart, gotEnd = channelID, start, end
			return []*model.ConversionEvent{{ID: "c1"}}, nil
		},
	}
	r := newFixedRouter(deps)

	t.Run("explicit range is end inclusive", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/api/v1/attribution/conversions?channel_id=ch-1&start_date=2024-01-01&end_date=2024-01-10", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if gotChannel != "ch-1" {
			t.Errorf("channel = %q, want ch-1", gotChannel)
		}
		if !gotStart.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("start = %v", gotStart)
		}
		if gotEnd.Before(time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC)) || !gotEnd.Before(time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("end = %v, want the last instant of 2024-01-10", gotEnd)
		}
		resp := decode(t, w)
		if resp["count"] != float64(1) {
			t.Errorf("count = %v, want 1", resp["count"])
		}
		period := resp["period"].(map[string]any)
		if period["start"] != "2024-01-01" || period["end"] != "2024-01-10" {
			t.Errorf("period = %v", period)
		}
	})

	t.Run("default last thirty days", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/api/v1/attribution/conversions", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if gotChannel != "" {
			t.Errorf("channel = %q, want all channels", gotChannel)
		}
		if !gotStart.Equal(fixedNow.AddDate(0, 0, -30)) || !gotEnd.Equal(fixedNow) {
			t.Errorf("range = %v..%v, want 30 days ending now", gotStart, gotEnd)
		}
	})

	t.Run("bad dates", func(t *testing.T) {
		for _, q := range []string{"?start_date=01/01/2024", "?end_date=tomorrow"} {
			w := do(t, r, http.MethodGet, "/api/v1/attribution/conversions"+q, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s status = %d, want 400", q, w.Code)
			}
		}
	})
}

func TestChannels(t *testing.T) {
	deps := testDeps()
	deps.Channels = &MockChannels{
		GetFunc: func(_ context.Context, id string) (*model.Channel, error) {
			if id != "ch-1" {
				return nil, model.ErrNotFound
			}
			return &model.Channel{ID: id, SupportedAssets: []model.ChannelAsset{{AssetID: "RWA-1"}}}, nil
		},
	}
	r := newTestRouter(deps)

	if w := do(t, r, http.MethodGet, "/api/v1/channels/ch-1", nil); w.Code != http.StatusOK {
		t.Errorf("GET channel status = %d, want 200", w.Code)
	}
	w := do(t, r, http.MethodGet, "/api/v1/channels/ch-1/assets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET assets status = %d, want 200", w.Code)
	}
	if assets := decode(t, w)["data"].([]any); len(assets) != 1 {
		t.Errorf("assets = %v, want 1", assets)
	}
	w = do(t, r, http.MethodGet, "/api/v1/channels/nope", nil)
	if w.Code != http.StatusNotFound || decode(t, w)["error"] != "Channel not found" {
		t.Errorf("unknown channel = %d %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	deps := testDeps()
	deps.Checks = map[string]Check{"postgres": func(context.Context) error { return nil }}
	r := newFixedRouter(deps)

	w := do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}

	deps.Checks["kv"] = func(context.Context) error { return errors.New("dial tcp: refused") }
	w = do(t, newFixedRouter(deps), http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", w.Code)
	}
	checks := decode(t, w)["checks"].(map[string]any)
	if checks["postgres"] != "healthy" || checks["kv"] != "dial tcp: refused" {
		t.Errorf("checks = %v", checks)
	}
}

func TestAdminStats(t *testing.T) {
	deps := testDeps()
	deps.AdminStats = func() any { return map[string]int{"published": 3} }

	w := do(t, newTestRouter(deps), http.MethodGet, "/api/v1/admin/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decode(t, w)["data"].(map[string]any)
	if data["published"] != float64(3) {
		t.Errorf("data = %v", data)
	}
}

func TestRateLimit(t *testing.T) {
	r := NewRouter(Config{RateLimit: 1, RateBurst: 2}, testDeps(), nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, r, http.MethodGet, "/api/v1/admin/stats", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestBasePath(t *testing.T) {
	r := NewRouter(Config{BasePath: "/channels/v2"}, testDeps(), nil)
	if w := do(t, r, http.MethodGet, "/channels/v2/admin/stats", nil); w.Code != http.StatusOK {
		t.Errorf("custom base path status = %d, want 200", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/admin/stats", nil); w.Code != http.StatusNotFound {
		t.Errorf("default base path status = %d, want 404", w.Code)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
