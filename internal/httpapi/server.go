package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rwa-platform/channel-service/internal/model"
)

// Matcher runs matching, quotes and redirect creation.
type Matcher interface {
	Match(ctx context.Context, req *model.MatchRequest) ([]*model.MatchResult, error)
	Quote(ctx context.Context, channelID string, amount float64) (*model.FeeEstimate, error)
	CreateRedirect(ctx context.Context, channelID string, req *model.MatchRequest) (*model.RedirectInfo, error)
}

// Redirects resolves redirect tokens.
type Redirects interface {
	Resolve(ctx context.Context, id string) (*model.RedirectRecord, error)
}

// Channels loads single channels.
type Channels interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
}

// Tracker records touchpoints.
type Tracker interface {
	TrackEvent(ctx context.Context, e *model.AttributionEvent) error
}

// Aggregator records conversions and serves stats.
type Aggregator interface {
	TrackConversion(ctx context.Context, c *model.ConversionEvent) error
	Stats(ctx context.Context, channelID, period string) (*model.AttributionStats, error)
	Conversions(ctx context.Context, channelID string, start, end time.Time) ([]*model.ConversionEvent, error)
}

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Deps are the services behind the routes. Live, Checks and AdminStats are
// optional.
type Deps struct {
	Matcher    Matcher
	Redirects  Redirects
	Channels   Channels
	Tracker    Tracker
	Aggregator Aggregator
	Live       http.Handler
	Checks     map[string]Check
	AdminStats func() any
}

// Config holds HTTP settings.
type Config struct {
	Addr            string
	BasePath        string        // default: /api/v1
	ReadTimeout     time.Duration // default: 15s
	WriteTimeout    time.Duration // default: 15s
	ShutdownTimeout time.Duration // default: 10s
	RateLimit       float64       // requests per second, 0 disables
	RateBurst       int
	InstanceID      string
}

// Server serves the API.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(cfg, deps, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", s.cfg.Addr, "base_path", s.cfg.BasePath)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown timed out", "error", err)
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg Config, deps Deps, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v1"
	}

	h := &handlers{deps: deps, instanceID: cfg.InstanceID, logger: logger, now: time.Now}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if cfg.RateLimit > 0 {
		router.Use(rateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	router.GET("/health", h.health)

	v1 := router.Group(cfg.BasePath)
	{
		channels := v1.Group("/channels")
		{
			channels.GET("/:id", h.getChannel)
			channels.GET("/:id/assets", h.getChannelAssets)
		}

		matching := v1.Group("/matching")
		{
			matching.POST("/match", h.match)
			matching.GET("/quote", h.quote)
			matching.POST("/redirect", h.createRedirect)
			matching.GET("/redirect/:id", h.getRedirect)
		}

		attribution := v1.Group("/attribution")
		{
			attribution.POST("/track", h.track)
			attribution.POST("/conversions", h.trackConversion)
			attribution.GET("/stats", h.stats)
			attribution.GET("/conversions", h.conversions)
			if deps.Live != nil {
				attribution.GET("/live", gin.WrapH(deps.Live))
			}
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/stats", h.adminStats)
		}
	}

	return router
}
