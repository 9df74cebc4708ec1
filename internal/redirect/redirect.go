// Package redirect issues and resolves short-lived redirect tokens.
//
// A token is a random UUID stored under "redirect:<id>" with a TTL. Expiry is
// the only invalidation: a token resolves any number of times until it lapses,
// after which it is indistinguishable from one that was never issued.
package redirect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/model"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = time.Hour

const (
	keyPrefix   = "redirect:"
	tradingPath = "/api/redirect"
	methodGet   = "GET"
)

// Store issues tokens into a kv.Store.
type Store struct {
	kv  kv.Store
	ttl time.Duration

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() string
}

// NewStore creates a token store. ttl <= 0 uses DefaultTTL.
func NewStore(store kv.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:    store,
		ttl:   ttl,
		Now:   time.Now,
		NewID: func() string { return uuid.New().String() },
	}
}

// TTL returns the token lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for sending the user of req to ch and returns the
// redirect descriptor.
func (s *Store) Issue(ctx context.Context, ch *model.Channel, req *model.MatchRequest) (*model.RedirectInfo, error) {
	id := s.NewID()
	now := s.Now()

	info := &model.RedirectInfo{
		URL:    BuildURL(ch, id),
		Method: methodGet,
		Parameters: map[string]any{
			"asset_id":    req.AssetID,
			"amount":      req.Amount,
			"redirect_id": id,
			"user_id":     req.UserID,
			"timestamp":   now.Unix(),
		},
		ExpiresAt: now.Add(s.ttl),
	}

	rec := &model.RedirectRecord{
		RedirectID:   id,
		ChannelID:    ch.ID,
		RedirectInfo: info,
		Request:      req,
		CreatedAt:    now,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal redirect record: %w", err)
	}

	if err := s.kv.Set(ctx, keyPrefix+id, data, s.ttl); err != nil {
		return nil, model.StoreError("store redirect token", err)
	}
	return info, nil
}

// Resolve returns the record behind id, or model.ErrNotFound when the token
// never existed or has expired.
func (s *Store) Resolve(ctx context.Context, id string) (*model.RedirectRecord, error) {
	if id == "" {
		return nil, model.ErrNotFound
	}

	data, err := s.kv.Get(ctx, keyPrefix+id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.StoreError("resolve redirect token", err)
	}

	var rec model.RedirectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode redirect record %s: %w", id, err)
	}
	return &rec, nil
}

// BuildURL returns the destination for token id. Channels with a trading API
// receive the user on their redirect endpoint.
func BuildURL(ch *model.Channel, id string) string {
	base := ch.Website
	if ch.HasTradingAPI() {
		base += tradingPath
	}
	return base + "?redirect_id=" + id
}
