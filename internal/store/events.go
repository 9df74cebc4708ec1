package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rwa-platform/channel-service/internal/model"
)

// SaveEvent inserts a touchpoint. Replaying an id is a no-op.
func (p *Postgres) SaveEvent(ctx context.Context, e *model.AttributionEvent) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		metadata = b
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO attribution_events (
			id, user_id, session_id, event_type, channel_id, asset_id, amount,
			redirect_id, ip_address, user_agent, referrer,
			utm_source, utm_medium, utm_campaign, metadata, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`,
		e.ID, e.UserID, e.SessionID, e.EventType, e.ChannelID, e.AssetID, e.Amount,
		e.RedirectID, e.IPAddress, e.UserAgent, e.Referrer,
		e.UTMSource, e.UTMMedium, e.UTMCampaign, metadata, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert attribution event: %w", err)
	}
	return nil
}

// SaveConversion inserts a conversion with its frozen attribution path.
func (p *Postgres) SaveConversion(ctx context.Context, c *model.ConversionEvent) error {
	path := c.AttributionPath
	if path == nil {
		path = []string{}
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO conversion_events (
			id, user_id, channel_id, asset_id, amount, fee,
			conversion_type, attribution_path, revenue, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		c.ID, c.UserID, c.ChannelID, c.AssetID, c.Amount, c.Fee,
		c.ConversionType, path, c.Revenue, c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert conversion event: %w", err)
	}
	return nil
}

// ListConversions returns conversions with start <= ts <= end, newest
// first. An empty channelID matches every channel.
func (p *Postgres) ListConversions(ctx context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error) {
	query := `
		SELECT id, user_id, channel_id, asset_id, amount, fee,
		       conversion_type, attribution_path, revenue, ts
		FROM conversion_events
		WHERE ts BETWEEN $1 AND $2`
	args := []any{start, end}
	if channelID != "" {
		query += ` AND channel_id = $3`
		args = append(args, channelID)
	}
	query += ` ORDER BY ts DESC`

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.ConversionEvent, error) {
		var c model.ConversionEvent
		err := row.Scan(
			&c.ID, &c.UserID, &c.ChannelID, &c.AssetID, &c.Amount, &c.Fee,
			&c.ConversionType, &c.AttributionPath, &c.Revenue, &c.Timestamp,
		)
		return &c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan conversions: %w", err)
	}
	return list, nil
}
