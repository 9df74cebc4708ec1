package model

import (
	"math"
	"slices"
	"time"
)

// -----------------------------------------------------------------------------
// Channel Types
// -----------------------------------------------------------------------------

// Channel types.
const (
	ChannelTypeExchange = "exchange"
	ChannelTypeBroker   = "broker"
	ChannelTypeDEX      = "dex"
	ChannelTypeIssuer   = "issuer"
	ChannelTypeBank     = "bank"
	ChannelTypePlatform = "platform"
)

// ChannelStatusActive is the only status that makes a channel matchable.
const ChannelStatusActive = "active"

// Channel is a venue through which a user can acquire an asset. Channels are
// written by the channel sync collaborator or imported from a file, and are
// read-only to matching.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`   // exchange, broker, dex, issuer, bank, platform
	Status      string `json:"status"` // "active" when matchable
	IsActive    bool   `json:"is_active"`
	Website     string `json:"website"`
	Logo        string `json:"logo,omitempty"`

	Compliance      ChannelCompliance `json:"compliance"`
	SupportedAssets []ChannelAsset    `json:"supported_assets"`
	Fees            ChannelFees       `json:"fees"`
	PaymentMethods  []PaymentMethod   `json:"payment_methods"`
	Support         ChannelSupport    `json:"support"`
	API             *ChannelAPI       `json:"api,omitempty"` // nil when the channel has no API
	Security        ChannelSecurity   `json:"security"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// ChannelCompliance holds regulatory constraints of a channel.
type ChannelCompliance struct {
	Licenses          []License `json:"licenses,omitempty"`
	SupportedRegions  []string  `json:"supported_regions"`
	RestrictedRegions []string  `json:"restricted_regions,omitempty"`
	KYCRequired       bool      `json:"kyc_required"`
	KYCLevels         []string  `json:"kyc_levels,omitempty"`
	AccreditedOnly    bool      `json:"accredited_only"`
	MinimumNetWorth   float64   `json:"minimum_net_worth"`
}

// License is an operating license held by a channel.
type License struct {
	Jurisdiction  string     `json:"jurisdiction"`
	LicenseType   string     `json:"license_type"`
	LicenseNumber string     `json:"license_number"`
	IssuedDate    time.Time  `json:"issued_date"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
}

// ChannelAsset is an asset listed by a channel.
type ChannelAsset struct {
	AssetID      string   `json:"asset_id"`
	AssetType    string   `json:"asset_type,omitempty"`
	TradingPairs []string `json:"trading_pairs,omitempty"`
	MinimumOrder float64  `json:"minimum_order"`
	MaximumOrder float64  `json:"maximum_order"`
	IsActive     bool     `json:"is_active"`
}

// ChannelFees is the fee schedule of a channel. Trading fees are rates,
// deposit and withdrawal fees are flat amounts per rail.
type ChannelFees struct {
	Trading    TradingFees `json:"trading"`
	Deposit    RailFees    `json:"deposit"`
	Withdrawal RailFees    `json:"withdrawal"`
	Management float64     `json:"management"`
}

// TradingFees holds maker/taker rates and an optional flat fee.
type TradingFees struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
	Flat  float64 `json:"flat"`
}

// RailFees holds flat fees per payment rail.
type RailFees struct {
	Crypto float64 `json:"crypto"`
	Fiat   float64 `json:"fiat"`
	Wire   float64 `json:"wire"`
}

// PaymentMethod is a funding method accepted by a channel.
type PaymentMethod struct {
	Method         string        `json:"method"`
	Currencies     []string      `json:"currencies,omitempty"`
	ProcessingTime string        `json:"processing_time,omitempty"`
	Limits         PaymentLimits `json:"limits"`
}

// PaymentLimits bounds a payment method.
type PaymentLimits struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Daily   float64 `json:"daily"`
	Monthly float64 `json:"monthly"`
}

// ChannelSupport describes the customer support of a channel.
type ChannelSupport struct {
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Chat         bool     `json:"chat"`
	Hours        string   `json:"hours,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	ResponseTime string   `json:"response_time,omitempty"` // "instant", "1hour", ...
}

// ChannelAPI describes the programmatic access a channel offers.
type ChannelAPI struct {
	HasReadOnlyAPI bool       `json:"has_read_only_api"`
	HasTradingAPI  bool       `json:"has_trading_api"`
	Documentation  string     `json:"documentation,omitempty"`
	RateLimits     RateLimits `json:"rate_limits"`
}

// RateLimits of a channel API.
type RateLimits struct {
	Requests int    `json:"requests"`
	Period   string `json:"period"`
}

// ChannelSecurity describes custody and insurance.
type ChannelSecurity struct {
	Insurance *Insurance  `json:"insurance,omitempty"`
	Custody   CustodyInfo `json:"custody"`
	Audits    []Audit     `json:"audits,omitempty"`
}

// Insurance coverage of customer assets.
type Insurance struct {
	Coverage float64 `json:"coverage"`
	Provider string  `json:"provider"`
}

// CustodyInfo describes who holds customer assets.
type CustodyInfo struct {
	Type        string `json:"type"`
	Provider    string `json:"provider"`
	Segregation bool   `json:"segregation"`
}

// Audit is a published audit report.
type Audit struct {
	Auditor    string    `json:"auditor"`
	ReportDate time.Time `json:"report_date"`
	ReportURL  string    `json:"report_url"`
	Scope      string    `json:"scope"`
}

// Matchable reports whether the channel status allows matching.
func (c *Channel) Matchable() bool {
	return c.IsActive && c.Status == ChannelStatusActive
}

// SupportsAsset reports whether assetID is in the supported assets list.
func (c *Channel) SupportsAsset(assetID string) bool {
	for _, a := range c.SupportedAssets {
		if a.AssetID == assetID {
			return true
		}
	}
	return false
}

// SupportsRegion reports whether region is in the supported regions list.
func (c *Channel) SupportsRegion(region string) bool {
	return slices.Contains(c.Compliance.SupportedRegions, region)
}

// SupportsPaymentMethod reports whether method is accepted.
func (c *Channel) SupportsPaymentMethod(method string) bool {
	for _, pm := range c.PaymentMethods {
		if pm.Method == method {
			return true
		}
	}
	return false
}

// HasTradingAPI reports whether the channel exposes a trading API.
func (c *Channel) HasTradingAPI() bool {
	return c.API != nil && c.API.HasTradingAPI
}

// AssetIDs returns the ids of all supported assets.
func (c *Channel) AssetIDs() []string {
	ids := make([]string, 0, len(c.SupportedAssets))
	for _, a := range c.SupportedAssets {
		ids = append(ids, a.AssetID)
	}
	return ids
}

// -----------------------------------------------------------------------------
// Matching Types
// -----------------------------------------------------------------------------

// MatchRequest is the input of a matching call. It is never persisted.
type MatchRequest struct {
	AssetID       string         `json:"asset_id"`
	Amount        float64        `json:"amount"`
	UserID        string         `json:"user_id"`
	UserRegion    string         `json:"user_region"`
	KYCLevel      string         `json:"kyc_level"`
	PaymentMethod string         `json:"payment_method"`
	Preferences   map[string]any `json:"preferences,omitempty"`
}

// Validate checks the fields the engine cannot work without.
func (r *MatchRequest) Validate() error {
	if r.AssetID == "" {
		return &ValidationError{Field: "asset_id", Reason: "is required"}
	}
	if r.UserRegion == "" {
		return &ValidationError{Field: "user_region", Reason: "is required"}
	}
	return CheckAmount(r.Amount)
}

// CheckAmount rejects negative and non-finite amounts.
func CheckAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return &ValidationError{Field: "amount", Reason: "must be a finite number"}
	}
	if amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must be >= 0"}
	}
	return nil
}

// MatchResult is the scored outcome for one candidate channel.
type MatchResult struct {
	ChannelID      string          `json:"channel_id"`
	Channel        *Channel        `json:"channel"`
	MatchScore     float64         `json:"match_score"` // 0.0-1.0
	Scores         SubScores       `json:"scores"`
	EstimatedFees  *FeeEstimate    `json:"estimated_fees"`
	Availability   *Availability   `json:"availability"`
	RedirectInfo   *RedirectInfo   `json:"redirect_info,omitempty"` // set for ranked results only
	ProcessingTime *ProcessingTime `json:"processing_time"`
}

// SubScores is the per-factor breakdown behind MatchScore.
type SubScores struct {
	Fee            float64 `json:"fee"`
	Availability   float64 `json:"availability"`
	UserExperience float64 `json:"user_experience"`
	Security       float64 `json:"security"`
	Liquidity      float64 `json:"liquidity"`
}

// FeeEstimate is the expected cost of a trade through a channel.
type FeeEstimate struct {
	TradingFee    float64 `json:"trading_fee"`
	WithdrawalFee float64 `json:"withdrawal_fee"`
	TotalFee      float64 `json:"total_fee"`
	Currency      string  `json:"currency"`
}

// Availability tells whether the user can use the channel right now.
type Availability struct {
	Available bool     `json:"available"`
	Reasons   []string `json:"reasons"`
}

// Availability reasons.
const (
	ReasonKYCRequired        = "KYC verification required"
	ReasonPaymentUnsupported = "Payment method not supported"
)

// RedirectInfo tells the client where to send the user.
type RedirectInfo struct {
	URL        string         `json:"url"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// ProcessingTime holds human-readable duration buckets.
type ProcessingTime struct {
	KYC        string `json:"kyc"`
	Deposit    string `json:"deposit"`
	Trade      string `json:"trade"`
	Withdrawal string `json:"withdrawal"`
}

// RedirectRecord is what a redirect token resolves to.
type RedirectRecord struct {
	RedirectID   string        `json:"redirect_id"`
	ChannelID    string        `json:"channel_id"`
	RedirectInfo *RedirectInfo `json:"redirect_info"`
	Request      *MatchRequest `json:"request"`
	CreatedAt    time.Time     `json:"created_at"`
}

// MatchingEventTypeCompleted is the type of events published after a queued match.
const MatchingEventTypeCompleted = "matching_completed"

// MatchingEvent is published for every drained matching request.
type MatchingEvent struct {
	Type        string         `json:"type"`
	Request     *MatchRequest  `json:"request"`
	Results     []*MatchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Timestamp   int64          `json:"timestamp"` // unix seconds
}
