package matching

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/scoring"
)

// Directory returns channels eligible for an asset in a region.
type Directory interface {
	EligibleChannels(ctx context.Context, assetID, region string) ([]*model.Channel, error)
}

// Scorer evaluates one channel against a request.
type Scorer interface {
	Score(ch *model.Channel, req *model.MatchRequest) *model.MatchResult
}

// TokenIssuer creates redirect tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, ch *model.Channel, req *model.MatchRequest) (*model.RedirectInfo, error)
}

// ChannelLookup loads a single channel by id. It returns model.ErrNotFound
// for unknown ids.
type ChannelLookup interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
}

// Config holds engine configuration.
type Config struct {
	MaxResults int     // Ranked list length (default: 10)
	MinScore   float64 // Lowest score kept (default: 0.6)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults: 10,
		MinScore:   0.6,
	}
}

// Engine produces ranked match results.
type Engine struct {
	cfg      Config
	dir      Directory
	scorer   Scorer
	tokens   TokenIssuer
	channels ChannelLookup
	logger   *slog.Logger
}

// NewEngine creates a new Engine. channels may be nil when Quote and
// CreateRedirect are not used.
func NewEngine(cfg Config, dir Directory, scorer Scorer, tokens TokenIssuer, channels ChannelLookup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		dir:      dir,
		scorer:   scorer,
		tokens:   tokens,
		channels: channels,
		logger:   logger,
	}
}

// Match returns the ranked, available channels for req, best first. It
// returns a *model.ValidationError for a malformed request and a
// *model.EligibilityError when no channel lists the asset in the region. An
// empty list with a nil error means channels exist but none qualified.
func (e *Engine) Match(ctx context.Context, req *model.MatchRequest) ([]*model.MatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	channels, err := e.dir.EligibleChannels(ctx, req.AssetID, req.UserRegion)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, &model.EligibilityError{AssetID: req.AssetID, Region: req.UserRegion}
	}

	results := make([]*model.MatchResult, 0, len(channels))
	for _, ch := range channels {
		r := e.scorer.Score(ch, req)
		if r.MatchScore < e.cfg.MinScore {
			continue
		}
		if r.Availability != nil && !r.Availability.Available {
			continue
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchScore > results[j].MatchScore
	})

	if len(results) > e.cfg.MaxResults {
		results = results[:e.cfg.MaxResults]
	}

	for _, r := range results {
		info, err := e.tokens.Issue(ctx, r.Channel, req)
		if err != nil {
			return nil, err
		}
		r.RedirectInfo = info
	}

	e.logger.Debug("match complete",
		"asset_id", req.AssetID,
		"region", req.UserRegion,
		"candidates", len(channels),
		"results", len(results),
	)
	return results, nil
}

// Quote estimates the fees of trading amount through one channel.
func (e *Engine) Quote(ctx context.Context, channelID string, amount float64) (*model.FeeEstimate, error) {
	if err := model.CheckAmount(amount); err != nil {
		return nil, err
	}
	ch, err := e.lookup(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return scoring.EstimateFees(ch, amount), nil
}

// CreateRedirect issues a token sending the user of req to a chosen channel.
func (e *Engine) CreateRedirect(ctx context.Context, channelID string, req *model.MatchRequest) (*model.RedirectInfo, error) {
	if req.UserID == "" {
		return nil, &model.ValidationError{Field: "user_id", Reason: "is required"}
	}
	ch, err := e.lookup(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.Matchable() {
		return nil, &model.ValidationError{Field: "channel_id", Reason: "is not active"}
	}
	return e.tokens.Issue(ctx, ch, req)
}

func (e *Engine) lookup(ctx context.Context, channelID string) (*model.Channel, error) {
	if channelID == "" {
		return nil, &model.ValidationError{Field: "channel_id", Reason: "is required"}
	}
	if e.channels == nil {
		return nil, errors.New("channel lookup not configured")
	}
	return e.channels.Get(ctx, channelID)
}
