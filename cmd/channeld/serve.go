package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rwa-platform/channel-service/internal/attribution"
	"github.com/rwa-platform/channel-service/internal/config"
	"github.com/rwa-platform/channel-service/internal/database"
	"github.com/rwa-platform/channel-service/internal/directory"
	"github.com/rwa-platform/channel-service/internal/events"
	"github.com/rwa-platform/channel-service/internal/httpapi"
	"github.com/rwa-platform/channel-service/internal/kv"
	"github.com/rwa-platform/channel-service/internal/live"
	"github.com/rwa-platform/channel-service/internal/matching"
	"github.com/rwa-platform/channel-service/internal/poller"
	"github.com/rwa-platform/channel-service/internal/redirect"
	"github.com/rwa-platform/channel-service/internal/scoring"
	"github.com/rwa-platform/channel-service/internal/store"
	"github.com/rwa-platform/channel-service/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	RunE:  runServe,
}

// kvBackend is the key/value store and queue shared by every component.
type kvBackend interface {
	kv.Store
	kv.Queue
}

// memorySweepInterval is how often the in-process store frees expired keys.
const memorySweepInterval = time.Minute

// component is a background worker with a Start/Stop lifecycle.
type component struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting channeld",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", configPath,
	)

	// Relational store
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	pg := store.NewPostgres(pool)

	checks := map[string]httpapi.Check{"postgres": pool.Ping}

	// Key/value store
	var (
		backend kvBackend
		sweeper *poller.Poller
	)
	if cfg.Redis.Enabled {
		rc, err := kv.NewRedisClient(ctx, kv.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		backend = kv.NewRedisStore(rc)
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn("redis disabled, keeping cache and counters in process memory")
		mem := kv.NewMemoryStore(nil)
		sweeper = mem.NewSweeper(memorySweepInterval, logger)
		backend = mem
	}
	checks["kv"] = backend.Ping

	// Event log
	var eventLog attribution.EventStore = pg
	if cfg.EventLog.Backend == config.EventLogClickHouse {
		ch, err := store.OpenClickHouse(ctx, cfg.EventLog.ClickHouse, logger)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer ch.Close()
		eventLog = ch
		checks["clickhouse"] = ch.Ping
	}

	// Event stream
	hub := live.NewHub(live.DefaultConfig(), logger)
	sink, deadLetter, closeSink := newSinks(cfg.Kafka, logger)
	defer closeSink()

	pub := events.NewPublisher(events.Config{
		BufferSize:      cfg.Publisher.BufferSize,
		Workers:         cfg.Publisher.Workers,
		Timeout:         cfg.Publisher.Timeout,
		DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
	}, events.Tee{sink, hub.Sink(cfg.Kafka.MatchingTopic)}, deadLetter, logger)

	// Matching
	dir := directory.New(directory.Config{
		CacheTTL:           cfg.Directory.CacheTTL,
		RefreshInterval:    cfg.Directory.RefreshInterval,
		RefreshConcurrency: cfg.Directory.RefreshConcurrency,
		LoadTimeout:        cfg.Directory.LoadTimeout,
	}, pg, backend, logger)

	scorer := scoring.NewScorer(cfg.Matching.ScoringWeights(), liquidityTable(cfg.Matching))
	tokens := redirect.NewStore(backend, cfg.Matching.RedirectExpiration)
	engine := matching.NewEngine(matching.Config{
		MaxResults: cfg.Matching.MaxResults,
		MinScore:   cfg.Matching.MinScoreValue(),
	}, dir, scorer, tokens, pg, logger)

	drainCfg := matching.DefaultDrainerConfig()
	drainCfg.QueueKey = cfg.Matching.QueueKey
	drainCfg.Topic = cfg.Kafka.MatchingTopic
	drainCfg.Interval = cfg.Matching.Interval
	drainCfg.Workers = cfg.Matching.Workers
	drainer := matching.NewDrainer(drainCfg, backend, engine, pub, logger)

	// Attribution
	attrCfg := attribution.Config{
		Window:            cfg.Attribution.Window,
		PathLength:        cfg.Attribution.PathLength,
		CounterTTL:        cfg.Attribution.CounterTTL,
		Topic:             cfg.Kafka.AttributionTopic,
		RollupInterval:    cfg.Attribution.RollupInterval,
		RollupConcurrency: cfg.Attribution.RollupConcurrency,
	}
	tracker := attribution.NewTracker(attrCfg, backend, eventLog, pub, logger)
	aggregator := attribution.NewAggregator(attrCfg, backend, pg, pg, pg, pub, hub, logger)

	ingestCfg := attribution.DefaultIngestConfig()
	ingestCfg.EventQueue = cfg.Attribution.EventQueue
	ingestCfg.ConversionQueue = cfg.Attribution.ConversionQueue
	ingestor := attribution.NewIngestor(ingestCfg, backend, tracker, aggregator, pub, logger)

	// HTTP
	server := httpapi.NewServer(httpapi.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		BasePath:        cfg.Server.BasePath,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		InstanceID:      cfg.Instance.ID,
	}, httpapi.Deps{
		Matcher:    engine,
		Redirects:  tokens,
		Channels:   pg,
		Tracker:    tracker,
		Aggregator: aggregator,
		Live:       hub,
		Checks:     checks,
		AdminStats: func() any {
			return map[string]any{
				"publisher": pub.Stats(),
				"drainer":   drainer.Stats(),
				"ingest":    ingestor.Stats(),
				"live":      hub.Stats(),
			}
		},
	}, logger)

	// The publisher starts first and stops last so that every other
	// component can still publish while it shuts down.
	components := []component{
		{"publisher", pub.Start, pub.Stop},
		{"directory", dir.Start, dir.Stop},
		{"drainer", drainer.Start, drainer.Stop},
		{"aggregator", aggregator.Start, aggregator.Stop},
		{"ingestor", ingestor.Start, ingestor.Stop},
	}
	if sweeper != nil {
		components = append(components, component{"kv sweeper", sweeper.Start, sweeper.Stop})
	}
	started := 0
	for _, c := range components {
		if err := c.start(ctx); err != nil {
			stopComponents(components[:started], cfg, logger)
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		started++
	}

	logger.Info("channeld running",
		"instance_id", cfg.Instance.ID,
		"addr", fmt.Sprintf(":%d", cfg.Server.Port),
		"base_path", cfg.Server.BasePath,
	)

	runErr := server.Run(ctx)

	logger.Info("shutting down")
	hub.Close()
	stopComponents(components, cfg, logger)
	logger.Info("shutdown complete")

	return runErr
}

// stopComponents stops cs in reverse start order.
func stopComponents(cs []component, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].stop(ctx); err != nil {
			logger.Warn("stop component", "component", cs[i].name, "error", err)
		}
	}
}

// newSinks returns the primary and dead-letter sinks. Without brokers events
// are only logged.
func newSinks(cfg config.KafkaConfig, logger *slog.Logger) (sink, deadLetter events.Sink, closeFn func()) {
	if len(cfg.Brokers) == 0 {
		logger.Warn("kafka brokers not configured, events are logged only")
		ls := events.NewLogSink(logger, slog.LevelDebug)
		return ls, events.NewLogSink(logger, slog.LevelWarn), func() {}
	}

	ks := events.NewKafkaSink(events.KafkaConfig{
		Brokers:      cfg.Brokers,
		BatchTimeout: cfg.BatchTimeout,
	})
	logger.Info("kafka sink configured", "brokers", cfg.Brokers)
	return ks, ks, func() {
		if err := ks.Close(); err != nil {
			logger.Warn("close kafka writer", "error", err)
		}
	}
}

// liquidityTable layers configured scores over the built-in table.
func liquidityTable(cfg config.MatchingConfig) scoring.LiquidityTable {
	table := scoring.DefaultLiquidityTable()
	maps.Copy(table.Scores, cfg.Liquidity)
	table.Default = cfg.DefaultLiquidity
	return table
}
