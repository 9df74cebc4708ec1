package config

import (
	"time"

	"github.com/rwa-platform/channel-service/internal/scoring"
)

// Config is the root configuration for a channeld instance.
type Config struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	EventLog    EventLogConfig    `yaml:"event_log"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Matching    MatchingConfig    `yaml:"matching"`
	Attribution AttributionConfig `yaml:"attribution"`
	Publisher   PublisherConfig   `yaml:"publisher"`
}

// InstanceConfig identifies this instance in logs and health output.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
}

// DatabaseConfig holds the relational store connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Event log backends.
const (
	EventLogPostgres   = "postgres"
	EventLogClickHouse = "clickhouse"
)

// EventLogConfig selects where raw attribution events are written.
type EventLogConfig struct {
	Backend    string           `yaml:"backend"` // postgres or clickhouse
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds the ClickHouse connection for the event log.
type ClickHouseConfig struct {
	Addr        string        `yaml:"addr"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// RedisConfig holds the key/value store connection. When disabled the
// service keeps cache, tokens, paths and counters in process memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// KafkaConfig holds event stream settings. No brokers means events are
// only logged.
type KafkaConfig struct {
	Brokers          []string      `yaml:"brokers"`
	MatchingTopic    string        `yaml:"matching_topic"`
	AttributionTopic string        `yaml:"attribution_topic"`
	DeadLetterTopic  string        `yaml:"dead_letter_topic"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
}

// DirectoryConfig holds Channel Directory Cache settings.
type DirectoryConfig struct {
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	RefreshConcurrency int           `yaml:"refresh_concurrency"`
	LoadTimeout        time.Duration `yaml:"load_timeout"`
}

// MatchingConfig holds engine, token and queue-drain settings.
type MatchingConfig struct {
	Interval           time.Duration      `yaml:"interval"`
	MaxResults         int                `yaml:"max_results"`
	MinScore           *float64           `yaml:"min_score"` // nil means the default; 0 keeps every channel
	RedirectExpiration time.Duration      `yaml:"redirect_expiration"`
	QueueKey           string             `yaml:"queue_key"`
	Workers            int                `yaml:"workers"`
	Weights            *WeightsConfig     `yaml:"weights"`   // nil means built-in weights
	Liquidity          map[string]float64 `yaml:"liquidity"` // channel type -> score
	DefaultLiquidity   float64            `yaml:"default_liquidity"`
}

// MinScoreValue returns the configured minimum score, or the default when
// unset.
func (m MatchingConfig) MinScoreValue() float64 {
	if m.MinScore == nil {
		return DefaultMinMatchingScore
	}
	return *m.MinScore
}

// ScoringWeights returns the configured weights, or the built-in ones when
// none are set.
func (m MatchingConfig) ScoringWeights() scoring.Weights {
	if m.Weights == nil {
		return scoring.DefaultWeights()
	}
	return scoring.Weights{
		Fee:            m.Weights.Fee,
		Availability:   m.Weights.Availability,
		UserExperience: m.Weights.UserExperience,
		Security:       m.Weights.Security,
		Liquidity:      m.Weights.Liquidity,
	}
}

// WeightsConfig overrides the scoring weights. They must sum to 1.
type WeightsConfig struct {
	Fee            float64 `yaml:"fee"`
	Availability   float64 `yaml:"availability"`
	UserExperience float64 `yaml:"user_experience"`
	Security       float64 `yaml:"security"`
	Liquidity      float64 `yaml:"liquidity"`
}

// AttributionConfig holds tracker, aggregator and ingest settings.
type AttributionConfig struct {
	Window            time.Duration `yaml:"window"`
	PathLength        int           `yaml:"path_length"`
	CounterTTL        time.Duration `yaml:"counter_ttl"`
	RollupInterval    time.Duration `yaml:"rollup_interval"`
	RollupConcurrency int           `yaml:"rollup_concurrency"`
	EventQueue        string        `yaml:"event_queue"`
	ConversionQueue   string        `yaml:"conversion_queue"`
}

// PublisherConfig holds the async event publisher settings.
type PublisherConfig struct {
	BufferSize int           `yaml:"buffer_size"`
	Workers    int           `yaml:"workers"`
	Timeout    time.Duration `yaml:"timeout"`
}
