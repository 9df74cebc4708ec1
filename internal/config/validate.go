package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must be >= 0")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	switch c.EventLog.Backend {
	case EventLogPostgres:
	case EventLogClickHouse:
		if c.EventLog.ClickHouse.Addr == "" {
			return errors.New("event_log.clickhouse.addr is required")
		}
	default:
		return fmt.Errorf("event_log.backend must be %s or %s, got %q", EventLogPostgres, EventLogClickHouse, c.EventLog.Backend)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}

	if c.Directory.CacheTTL <= 0 {
		return errors.New("directory.cache_ttl must be > 0")
	}
	if c.Directory.RefreshConcurrency < 1 {
		return errors.New("directory.refresh_concurrency must be >= 1")
	}

	if err := c.Matching.validate(); err != nil {
		return err
	}

	if c.Attribution.Window <= 0 {
		return errors.New("attribution.window must be > 0")
	}
	if c.Attribution.PathLength < 1 {
		return errors.New("attribution.path_length must be >= 1")
	}
	if c.Attribution.RollupConcurrency < 1 {
		return errors.New("attribution.rollup_concurrency must be >= 1")
	}

	if c.Publisher.BufferSize < 1 {
		return errors.New("publisher.buffer_size must be >= 1")
	}
	if c.Publisher.Workers < 1 {
		return errors.New("publisher.workers must be >= 1")
	}

	return nil
}

func (m *MatchingConfig) validate() error {
	if m.MaxResults < 1 {
		return errors.New("matching.max_results must be >= 1")
	}
	if s := m.MinScoreValue(); !(s >= 0 && s <= 1) {
		return fmt.Errorf("matching.min_score must be between 0 and 1, got %v", s)
	}
	if m.RedirectExpiration <= 0 {
		return errors.New("matching.redirect_expiration must be > 0")
	}
	if m.Workers < 1 {
		return errors.New("matching.workers must be >= 1")
	}
	if m.Weights != nil {
		if err := m.ScoringWeights().Validate(); err != nil {
			return fmt.Errorf("matching.%w", err)
		}
	}
	for typ, score := range m.Liquidity {
		if score < 0 || score > 1 {
			return fmt.Errorf("matching.liquidity.%s must be between 0 and 1, got %v", typ, score)
		}
	}
	if m.DefaultLiquidity < 0 || m.DefaultLiquidity > 1 {
		return fmt.Errorf("matching.default_liquidity must be between 0 and 1, got %v", m.DefaultLiquidity)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
