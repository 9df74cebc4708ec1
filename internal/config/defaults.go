package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultServerPort        = 8003
	DefaultBasePath          = "/api/v1"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultRateLimit         = 100
	DefaultRateBurst         = 200
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultEventLogBackend   = EventLogPostgres
	DefaultClickHouseDB      = "default"
	DefaultClickHouseDial    = 10 * time.Second
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPoolSize     = 20
	DefaultMatchingTopic     = "matching-events"
	DefaultAttributionTopic  = "attribution-events"
	DefaultDeadLetterTopic   = "channel-dead-letter"
	DefaultKafkaBatchTimeout = 50 * time.Millisecond

	DefaultChannelCacheTTL      = 600 * time.Second
	DefaultRefreshInterval      = 300 * time.Second
	DefaultRefreshConcurrency   = 5
	DefaultDirectoryLoadTimeout = 10 * time.Second
	DefaultMatchingInterval     = 30 * time.Second
	DefaultMaxMatchingResults   = 10
	DefaultMinMatchingScore     = 0.6
	DefaultRedirectExpiration   = 3600 * time.Second
	DefaultMatchingQueueKey     = "matching:queue"
	DefaultMatchingWorkers      = 4
	DefaultLiquidityScore       = 0.5
	DefaultAttributionWindow    = 86400 * time.Second
	DefaultPathLength           = 10
	DefaultCounterTTL           = 30 * 24 * time.Hour
	DefaultRollupInterval       = time.Hour
	DefaultRollupConcurrency    = 10
	DefaultEventQueueKey        = "attribution:events"
	DefaultConversionQueueKey   = "attribution:conversions"
	DefaultPublisherBufferSize  = 1000
	DefaultPublisherWorkers     = 4
	DefaultPublisherTimeout     = 10 * time.Second
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = DefaultRateBurst
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Event log defaults
	if c.EventLog.Backend == "" {
		c.EventLog.Backend = DefaultEventLogBackend
	}
	if c.EventLog.ClickHouse.Database == "" {
		c.EventLog.ClickHouse.Database = DefaultClickHouseDB
	}
	if c.EventLog.ClickHouse.DialTimeout == 0 {
		c.EventLog.ClickHouse.DialTimeout = DefaultClickHouseDial
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = DefaultRedisPoolSize
	}

	// Kafka defaults
	if c.Kafka.MatchingTopic == "" {
		c.Kafka.MatchingTopic = DefaultMatchingTopic
	}
	if c.Kafka.AttributionTopic == "" {
		c.Kafka.AttributionTopic = DefaultAttributionTopic
	}
	if c.Kafka.DeadLetterTopic == "" {
		c.Kafka.DeadLetterTopic = DefaultDeadLetterTopic
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}

	// Directory defaults
	if c.Directory.CacheTTL == 0 {
		c.Directory.CacheTTL = DefaultChannelCacheTTL
	}
	if c.Directory.RefreshInterval == 0 {
		c.Directory.RefreshInterval = DefaultRefreshInterval
	}
	if c.Directory.RefreshConcurrency == 0 {
		c.Directory.RefreshConcurrency = DefaultRefreshConcurrency
	}
	if c.Directory.LoadTimeout == 0 {
		c.Directory.LoadTimeout = DefaultDirectoryLoadTimeout
	}

	// Matching defaults
	if c.Matching.Interval == 0 {
		c.Matching.Interval = DefaultMatchingInterval
	}
	if c.Matching.MaxResults == 0 {
		c.Matching.MaxResults = DefaultMaxMatchingResults
	}
	if c.Matching.MinScore == nil {
		minScore := DefaultMinMatchingScore
		c.Matching.MinScore = &minScore
	}
	if c.Matching.RedirectExpiration == 0 {
		c.Matching.RedirectExpiration = DefaultRedirectExpiration
	}
	if c.Matching.QueueKey == "" {
		c.Matching.QueueKey = DefaultMatchingQueueKey
	}
	if c.Matching.Workers == 0 {
		c.Matching.Workers = DefaultMatchingWorkers
	}
	if c.Matching.DefaultLiquidity == 0 {
		c.Matching.DefaultLiquidity = DefaultLiquidityScore
	}

	// Attribution defaults
	if c.Attribution.Window == 0 {
		c.Attribution.Window = DefaultAttributionWindow
	}
	if c.Attribution.PathLength == 0 {
		c.Attribution.PathLength = DefaultPathLength
	}
	if c.Attribution.CounterTTL == 0 {
		c.Attribution.CounterTTL = DefaultCounterTTL
	}
	if c.Attribution.RollupInterval == 0 {
		c.Attribution.RollupInterval = DefaultRollupInterval
	}
	if c.Attribution.RollupConcurrency == 0 {
		c.Attribution.RollupConcurrency = DefaultRollupConcurrency
	}
	if c.Attribution.EventQueue == "" {
		c.Attribution.EventQueue = DefaultEventQueueKey
	}
	if c.Attribution.ConversionQueue == "" {
		c.Attribution.ConversionQueue = DefaultConversionQueueKey
	}

	// Publisher defaults
	if c.Publisher.BufferSize == 0 {
		c.Publisher.BufferSize = DefaultPublisherBufferSize
	}
	if c.Publisher.Workers == 0 {
		c.Publisher.Workers = DefaultPublisherWorkers
	}
	if c.Publisher.Timeout == 0 {
		c.Publisher.Timeout = DefaultPublisherTimeout
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
