package model

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

func TestChannelPredicates(t *testing.T) {
	ch := Channel{
		ID:       "ch-1",
		Status:   ChannelStatusActive,
		IsActive: true,
		Compliance: ChannelCompliance{
			SupportedRegions: []string{"US", "EU"},
		},
		SupportedAssets: []ChannelAsset{{AssetID: "RWA-1"}, {AssetID: "RWA-2"}},
		PaymentMethods:  []PaymentMethod{{Method: "card"}},
		API:             &ChannelAPI{HasTradingAPI: true},
	}

	if !ch.Matchable() {
		t.Error("Matchable() = false, want true")
	}
	if !ch.SupportsAsset("RWA-2") {
		t.Error("SupportsAsset(RWA-2) = false, want true")
	}
	if ch.SupportsAsset("RWA-3") {
		t.Error("SupportsAsset(RWA-3) = true, want false")
	}
	if !ch.SupportsRegion("EU") || ch.SupportsRegion("APAC") {
		t.Error("SupportsRegion mismatch")
	}
	if !ch.SupportsPaymentMethod("card") || ch.SupportsPaymentMethod("wire") {
		t.Error("SupportsPaymentMethod mismatch")
	}
	if !ch.HasTradingAPI() {
		t.Error("HasTradingAPI() = false, want true")
	}

	ch.Status = "suspended"
	if ch.Matchable() {
		t.Error("Matchable() = true for suspended channel")
	}

	var noAPI Channel
	if noAPI.HasTradingAPI() {
		t.Error("HasTradingAPI() = true for nil API")
	}
}

func TestMatchRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       MatchRequest
		wantField string
	}{
		{"valid", MatchRequest{AssetID: "A", UserRegion: "US", Amount: 10}, ""},
		{"missing asset", MatchRequest{UserRegion: "US"}, "asset_id"},
		{"missing region", MatchRequest{AssetID: "A"}, "user_region"},
		{"negative amount", MatchRequest{AssetID: "A", UserRegion: "US", Amount: -1}, "amount"},
		{"NaN amount", MatchRequest{AssetID: "A", UserRegion: "US", Amount: math.NaN()}, "amount"},
		{"infinite amount", MatchRequest{AssetID: "A", UserRegion: "US", Amount: math.Inf(1)}, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("errors.Is(err, ErrValidation) = false")
			}
		})
	}
}

func TestTouchpointRoundTrip(t *testing.T) {
	ts := time.Unix(1705321845, 0)
	e := AttributionEvent{ChannelID: "chan:with:colons", EventType: EventClick, Timestamp: ts}

	tp := e.Touchpoint()
	if tp != "chan:with:colons:click:1705321845" {
		t.Fatalf("Touchpoint() = %q", tp)
	}

	ch, et, got, ok := ParseTouchpoint(tp)
	if !ok {
		t.Fatal("ParseTouchpoint() ok = false")
	}
	if ch != "chan:with:colons" || et != EventClick || !got.Equal(ts) {
		t.Errorf("ParseTouchpoint() = %q, %q, %v", ch, et, got)
	}

	if _, _, _, ok := ParseTouchpoint("garbage"); ok {
		t.Error("ParseTouchpoint(garbage) ok = true")
	}
}

func TestDailyCountersDerived(t *testing.T) {
	tests := []struct {
		name     string
		c        DailyCounters
		wantRate float64
		wantAOV  float64
	}{
		{"empty", DailyCounters{}, 0, 0},
		{"conversions without clicks", DailyCounters{Conversions: 2, Revenue: 10}, 0, 5},
		{"normal", DailyCounters{Clicks: 10, Conversions: 2, Revenue: 50}, 0.2, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.ConversionRate(); got != tt.wantRate {
				t.Errorf("ConversionRate() = %v, want %v", got, tt.wantRate)
			}
			if got := tt.c.AverageOrderValue(); got != tt.wantAOV {
				t.Errorf("AverageOrderValue() = %v, want %v", got, tt.wantAOV)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	storeErr := StoreError("get channels", io.ErrUnexpectedEOF)
	if !errors.Is(storeErr, ErrBackingStore) {
		t.Error("StoreError not classified as ErrBackingStore")
	}
	if !errors.Is(storeErr, io.ErrUnexpectedEOF) {
		t.Error("StoreError lost the cause")
	}
	if StoreError("noop", nil) != nil {
		t.Error("StoreError(nil) != nil")
	}

	elig := &EligibilityError{AssetID: "A", Region: "US"}
	if !errors.Is(elig, ErrNoEligibleChannels) {
		t.Error("EligibilityError not classified as ErrNoEligibleChannels")
	}
	if elig.Error() != "no eligible channels found for asset A in region US" {
		t.Errorf("Error() = %q", elig.Error())
	}
}
