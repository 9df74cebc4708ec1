package model

import (
	"strconv"
	"strings"
	"time"
)

// DayFormat is the layout of per-day counter keys and stats periods.
const DayFormat = "2006-01-02"

// Day returns the UTC calendar day of t in DayFormat.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Touchpoint event types.
const (
	EventClick    = "click"
	EventView     = "view"
	EventRedirect = "redirect"
	EventSignup   = "signup"
)

// Conversion types.
const (
	ConversionPurchase = "purchase"
	ConversionDeposit  = "deposit"
	ConversionTrade    = "trade"
)

// Envelope types published on the attribution topic.
const (
	EnvelopeAttributionEvent = "attribution_event"
	EnvelopeConversionEvent  = "conversion_event"
)

// AttributionEvent is one user touchpoint.
type AttributionEvent struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
	EventType   string         `json:"event_type"` // click, view, redirect, signup
	ChannelID   string         `json:"channel_id"`
	AssetID     string         `json:"asset_id"`
	Amount      float64        `json:"amount"`
	RedirectID  string         `json:"redirect_id"`
	IPAddress   string         `json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
	Referrer    string         `json:"referrer"`
	UTMSource   string         `json:"utm_source"`
	UTMMedium   string         `json:"utm_medium"`
	UTMCampaign string         `json:"utm_campaign"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Touchpoint renders the path entry for the event: "channel:eventType:unix".
func (e *AttributionEvent) Touchpoint() string {
	return e.ChannelID + ":" + e.EventType + ":" + strconv.FormatInt(e.Timestamp.Unix(), 10)
}

// KnownEventType reports whether t is one of the four touchpoint types.
func KnownEventType(t string) bool {
	switch t {
	case EventClick, EventView, EventRedirect, EventSignup:
		return true
	}
	return false
}

// ParseTouchpoint splits a path entry back into its parts.
func ParseTouchpoint(s string) (channelID, eventType string, ts time.Time, ok bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", time.Time{}, false
	}
	unix, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return "", "", time.Time{}, false
	}
	head := s[:i]
	j := strings.LastIndexByte(head, ':')
	if j < 0 {
		return "", "", time.Time{}, false
	}
	return head[:j], head[j+1:], time.Unix(unix, 0), true
}

// ConversionEvent is a revenue-generating action credited to a path.
type ConversionEvent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ChannelID       string    `json:"channel_id"`
	AssetID         string    `json:"asset_id"`
	Amount          float64   `json:"amount"`
	Fee             float64   `json:"fee"`
	ConversionType  string    `json:"conversion_type"` // purchase, deposit, trade
	AttributionPath []string  `json:"attribution_path"`
	Revenue         float64   `json:"revenue"`
	Timestamp       time.Time `json:"timestamp"`
}

// AttributionStats is the persisted per-channel, per-day snapshot.
type AttributionStats struct {
	ChannelID         string    `json:"channel_id"`
	TotalClicks       int64     `json:"total_clicks"`
	TotalViews        int64     `json:"total_views"`
	TotalRedirects    int64     `json:"total_redirects"`
	TotalSignups      int64     `json:"total_signups"`
	TotalConversions  int64     `json:"total_conversions"`
	ConversionRate    float64   `json:"conversion_rate"` // conversions / clicks
	TotalRevenue      float64   `json:"total_revenue"`
	AverageOrderValue float64   `json:"average_order_value"`
	Period            string    `json:"period"` // YYYY-MM-DD
	UpdatedAt         time.Time `json:"updated_at"`
}

// DailyCounters are the live per-channel, per-day totals.
type DailyCounters struct {
	Clicks      int64
	Views       int64
	Redirects   int64
	Signups     int64
	Conversions int64
	Revenue     float64
}

// ConversionRate is conversions/clicks, or 0 without clicks.
func (c DailyCounters) ConversionRate() float64 {
	if c.Clicks == 0 {
		return 0
	}
	return float64(c.Conversions) / float64(c.Clicks)
}

// AverageOrderValue is revenue/conversions, or 0 without conversions.
func (c DailyCounters) AverageOrderValue() float64 {
	if c.Conversions == 0 {
		return 0
	}
	return c.Revenue / float64(c.Conversions)
}

// Stats builds the snapshot for channelID and period.
func (c DailyCounters) Stats(channelID, period string, now time.Time) *AttributionStats {
	return &AttributionStats{
		ChannelID:         channelID,
		TotalClicks:       c.Clicks,
		TotalViews:        c.Views,
		TotalRedirects:    c.Redirects,
		TotalSignups:      c.Signups,
		TotalConversions:  c.Conversions,
		ConversionRate:    c.ConversionRate(),
		TotalRevenue:      c.Revenue,
		AverageOrderValue: c.AverageOrderValue(),
		Period:            period,
		UpdatedAt:         now,
	}
}

// AttributionEnvelope wraps events published on the attribution topic.
type AttributionEnvelope struct {
	Type       string            `json:"type"`
	Event      *AttributionEvent `json:"event,omitempty"`
	Conversion *ConversionEvent  `json:"conversion,omitempty"`
}
