package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/rwa-platform/channel-service/internal/config"
	"github.com/rwa-platform/channel-service/internal/model"
)

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS attribution_events (
		id           String,
		user_id      String,
		session_id   String,
		event_type   LowCardinality(String),
		channel_id   String,
		asset_id     String,
		amount       Float64,
		redirect_id  String,
		ip_address   String,
		user_agent   String,
		referrer     String,
		utm_source   String,
		utm_medium   String,
		utm_campaign String,
		metadata     String,
		ts           DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	ORDER BY (channel_id, ts)
`

// ClickHouseEventLog writes touchpoints to ClickHouse.
type ClickHouseEventLog struct {
	conn   driver.Conn
	logger *slog.Logger
}

// OpenClickHouse connects, pings and creates the events table if needed.
func OpenClickHouse(ctx context.Context, cfg config.ClickHouseConfig, logger *slog.Logger) (*ClickHouseEventLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, createEventsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create attribution_events table: %w", err)
	}

	logger.Info("clickhouse event log ready", "addr", cfg.Addr, "database", cfg.Database)
	return &ClickHouseEventLog{conn: conn, logger: logger}, nil
}

// SaveEvent inserts a touchpoint. It waits for the server to flush the async
// insert so a nil error means the row is stored.
func (l *ClickHouseEventLog) SaveEvent(ctx context.Context, e *model.AttributionEvent) error {
	metadata := ""
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		metadata = string(b)
	}

	err := l.conn.AsyncInsert(ctx, `
		INSERT INTO attribution_events (
			id, user_id, session_id, event_type, channel_id, asset_id, amount,
			redirect_id, ip_address, user_agent, referrer,
			utm_source, utm_medium, utm_campaign, metadata, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, true,
		e.ID, e.UserID, e.SessionID, e.EventType, e.ChannelID, e.AssetID, e.Amount,
		e.RedirectID, e.IPAddress, e.UserAgent, e.Referrer,
		e.UTMSource, e.UTMMedium, e.UTMCampaign, metadata, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert attribution event: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (l *ClickHouseEventLog) Ping(ctx context.Context) error {
	return l.conn.Ping(ctx)
}

// Close releases the connection.
func (l *ClickHouseEventLog) Close() error {
	return l.conn.Close()
}
