package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rwa-platform/channel-service/internal/model"
)

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// Match ranks channels for req.
func (c *Client) Match(ctx context.Context, req *model.MatchRequest) ([]*model.MatchResult, error) {
	var resp dataEnvelope[[]*model.MatchResult]
	if err := c.call(ctx, http.MethodPost, c.api("/matching/match"), nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Quote estimates the fees of trading amount through channelID.
func (c *Client) Quote(ctx context.Context, channelID string, amount float64) (*model.FeeEstimate, error) {
	q := url.Values{}
	q.Set("channel_id", channelID)
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))

	var resp dataEnvelope[*model.FeeEstimate]
	if err := c.call(ctx, http.MethodGet, c.api("/matching/quote"), q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Redirect resolves a redirect token.
func (c *Client) Redirect(ctx context.Context, id string) (*model.RedirectRecord, error) {
	var resp dataEnvelope[*model.RedirectRecord]
	if err := c.call(ctx, http.MethodGet, c.api("/matching/redirect/"+url.PathEscape(id)), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Track records a touchpoint.
func (c *Client) Track(ctx context.Context, e *model.AttributionEvent) error {
	return c.call(ctx, http.MethodPost, c.api("/attribution/track"), nil, e, nil)
}

// Stats loads the daily snapshot of channelID. An empty period means today
// on the server.
func (c *Client) Stats(ctx context.Context, channelID, period string) (*model.AttributionStats, error) {
	q := url.Values{}
	q.Set("channel_id", channelID)
	if period != "" {
		q.Set("period", period)
	}

	var resp dataEnvelope[*model.AttributionStats]
	if err := c.call(ctx, http.MethodGet, c.api("/attribution/stats"), q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Health returns the health document. It is not retried; a degraded
// instance answers 503 and that is returned as an *APIError.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}

func (c *Client) api(path string) string {
	return c.basePath + path
}
