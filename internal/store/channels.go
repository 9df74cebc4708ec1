package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rwa-platform/channel-service/internal/model"
)

// channelRow is the column projection of a channel. The full document lives
// in data; the other columns exist for filtering.
type channelRow struct {
	ID               string
	Name             string
	Type             string
	Status           string
	IsActive         bool
	SupportedAssets  []string
	SupportedRegions []string
	Data             []byte
}

func toChannelRow(ch *model.Channel) (channelRow, error) {
	data, err := json.Marshal(ch)
	if err != nil {
		return channelRow{}, fmt.Errorf("encode channel %s: %w", ch.ID, err)
	}
	regions := ch.Compliance.SupportedRegions
	if regions == nil {
		regions = []string{}
	}
	return channelRow{
		ID:               ch.ID,
		Name:             ch.Name,
		Type:             ch.Type,
		Status:           ch.Status,
		IsActive:         ch.IsActive,
		SupportedAssets:  ch.AssetIDs(),
		SupportedRegions: regions,
		Data:             data,
	}, nil
}

func decodeChannel(data []byte) (*model.Channel, error) {
	var ch model.Channel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("decode channel: %w", err)
	}
	return &ch, nil
}

// EligibleChannels returns active channels that list assetID and serve region.
func (p *Postgres) EligibleChannels(ctx context.Context, assetID, region string) ([]*model.Channel, error) {
	rows, err := p.db.Query(ctx, `
		SELECT data FROM channels
		WHERE status = 'active' AND is_active
		  AND $1 = ANY(supported_assets)
		  AND $2 = ANY(supported_regions)
		ORDER BY id
	`, assetID, region)
	if err != nil {
		return nil, fmt.Errorf("query eligible channels: %w", err)
	}
	defer rows.Close()

	var out []*model.Channel
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch, err := decodeChannel(data)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return out, nil
}

// ActiveChannelIDs returns the ids of all matchable channels.
func (p *Postgres) ActiveChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT id FROM channels WHERE status = 'active' AND is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active channels: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect channel ids: %w", err)
	}
	return ids, nil
}

// Get loads one channel. It returns model.ErrNotFound for unknown ids.
func (p *Postgres) Get(ctx context.Context, id string) (*model.Channel, error) {
	var data []byte
	err := p.db.QueryRow(ctx, `SELECT data FROM channels WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", id, err)
	}
	return decodeChannel(data)
}

// UpsertChannels inserts or replaces channels in a single batch and returns
// the number written.
func (p *Postgres) UpsertChannels(ctx context.Context, channels []*model.Channel) (int, error) {
	batch := &pgx.Batch{}
	for _, ch := range channels {
		r, err := toChannelRow(ch)
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO channels (id, name, channel_type, status, is_active, supported_assets, supported_regions, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				channel_type = EXCLUDED.channel_type,
				status = EXCLUDED.status,
				is_active = EXCLUDED.is_active,
				supported_assets = EXCLUDED.supported_assets,
				supported_regions = EXCLUDED.supported_regions,
				data = EXCLUDED.data,
				updated_at = NOW()
		`, r.ID, r.Name, r.Type, r.Status, r.IsActive, r.SupportedAssets, r.SupportedRegions, r.Data)
	}

	results := p.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, ch := range channels {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert channel %s: %w", ch.ID, err)
		}
	}
	return len(channels), nil
}
