package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rwa-platform/channel-service/internal/model"
)

// UpsertStats writes the snapshot for (channel, period), replacing any
// earlier one.
func (p *Postgres) UpsertStats(ctx context.Context, s *model.AttributionStats) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO attribution_stats (
			channel_id, period, total_clicks, total_views, total_redirects,
			total_signups, total_conversions, conversion_rate, total_revenue,
			average_order_value, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (channel_id, period) DO UPDATE SET
			total_clicks = EXCLUDED.total_clicks,
			total_views = EXCLUDED.total_views,
			total_redirects = EXCLUDED.total_redirects,
			total_signups = EXCLUDED.total_signups,
			total_conversions = EXCLUDED.total_conversions,
			conversion_rate = EXCLUDED.conversion_rate,
			total_revenue = EXCLUDED.total_revenue,
			average_order_value = EXCLUDED.average_order_value,
			updated_at = EXCLUDED.updated_at
	`,
		s.ChannelID, s.Period, s.TotalClicks, s.TotalViews, s.TotalRedirects,
		s.TotalSignups, s.TotalConversions, s.ConversionRate, s.TotalRevenue,
		s.AverageOrderValue, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert attribution stats: %w", err)
	}
	return nil
}

// GetStats loads a snapshot. It returns model.ErrNotFound when none exists.
func (p *Postgres) GetStats(ctx context.Context, channelID, period string) (*model.AttributionStats, error) {
	var s model.AttributionStats
	err := p.db.QueryRow(ctx, `
		SELECT channel_id, period, total_clicks, total_views, total_redirects,
		       total_signups, total_conversions, conversion_rate, total_revenue,
		       average_order_value, updated_at
		FROM attribution_stats
		WHERE channel_id = $1 AND period = $2
	`, channelID, period).Scan(
		&s.ChannelID, &s.Period, &s.TotalClicks, &s.TotalViews, &s.TotalRedirects,
		&s.TotalSignups, &s.TotalConversions, &s.ConversionRate, &s.TotalRevenue,
		&s.AverageOrderValue, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attribution stats: %w", err)
	}
	return &s, nil
}
