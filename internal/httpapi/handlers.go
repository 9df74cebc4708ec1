package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rwa-platform/channel-service/internal/model"
	"github.com/rwa-platform/channel-service/internal/version"
)

const (
	defaultConversionDays = 30
	healthCheckTimeout    = 2 * time.Second
)

type handlers struct {
	deps       Deps
	instanceID string
	logger     *slog.Logger
	now        func() time.Time
}

// writeError maps domain errors to status codes. notFound is the message
// used for model.ErrNotFound and failed for everything unclassified.
func (h *handlers) writeError(c *gin.Context, err error, notFound, failed string) {
	var eligibility *model.EligibilityError
	switch {
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	case errors.As(err, &eligibility):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No eligible channels", "details": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	default:
		h.logger.Error(failed, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": failed, "details": err.Error()})
	}
}

func badBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	checks := make(gin.H, len(h.deps.Checks))
	healthy := true
	for name, check := range h.deps.Checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "healthy"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"service":   "channel-service",
		"instance":  h.instanceID,
		"timestamp": h.now().Unix(),
		"version":   version.Get(),
		"checks":    checks,
	})
}

func (h *handlers) getChannel(c *gin.Context) {
	ch, err := h.deps.Channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Channel not found", "Failed to fetch channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ch})
}

func (h *handlers) getChannelAssets(c *gin.Context) {
	ch, err := h.deps.Channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Channel not found", "Failed to fetch channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ch.SupportedAssets})
}

func (h *handlers) match(c *gin.Context) {
	var req model.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	results, err := h.deps.Matcher.Match(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, "Channel not found", "Failed to match channels")
		return
	}
	if results == nil {
		results = []*model.MatchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"data": results, "count": len(results)})
}

func (h *handlers) quote(c *gin.Context) {
	channelID := c.Query("channel_id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel_id is required"})
		return
	}
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil || model.CheckAmount(amount) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a non-negative number"})
		return
	}

	fees, err := h.deps.Matcher.Quote(c.Request.Context(), channelID, amount)
	if err != nil {
		h.writeError(c, err, "Channel not found", "Failed to quote channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": fees})
}

// redirectRequest is the body of POST /matching/redirect.
type redirectRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	model.MatchRequest
}

func (h *handlers) createRedirect(c *gin.Context) {
	var req redirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	info, err := h.deps.Matcher.CreateRedirect(c.Request.Context(), req.ChannelID, &req.MatchRequest)
	if err != nil {
		h.writeError(c, err, "Channel not found", "Failed to create redirect")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": info})
}

func (h *handlers) getRedirect(c *gin.Context) {
	rec, err := h.deps.Redirects.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Redirect not found or expired", "Failed to resolve redirect")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (h *handlers) track(c *gin.Context) {
	var event model.AttributionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		badBody(c, err)
		return
	}

	event.IPAddress = c.ClientIP()
	event.UserAgent = c.GetHeader("User-Agent")
	event.Referrer = c.GetHeader("Referer")

	if err := h.deps.Tracker.TrackEvent(c.Request.Context(), &event); err != nil {
		h.writeError(c, err, "Not found", "Failed to track attribution event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attribution event tracked successfully"})
}

func (h *handlers) trackConversion(c *gin.Context) {
	var conv model.ConversionEvent
	if err := c.ShouldBindJSON(&conv); err != nil {
		badBody(c, err)
		return
	}
	// The path is taken from the tracked touchpoints, never from the client.
	conv.AttributionPath = nil

	if err := h.deps.Aggregator.TrackConversion(c.Request.Context(), &conv); err != nil {
		h.writeError(c, err, "Not found", "Failed to track conversion")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": conv})
}

func (h *handlers) stats(c *gin.Context) {
	channelID := c.Query("channel_id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel_id is required"})
		return
	}
	period := c.DefaultQuery("period", model.Day(h.now()))
	if _, err := time.Parse(model.DayFormat, period); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period format, use YYYY-MM-DD"})
		return
	}

	stats, err := h.deps.Aggregator.Stats(c.Request.Context(), channelID, period)
	if err != nil {
		h.writeError(c, err, "Attribution stats not found", "Failed to fetch attribution stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (h *handlers) conversions(c *gin.Context) {
	now := h.now().UTC()
	start := now.AddDate(0, 0, -defaultConversionDays)
	end := now

	if s := c.Query("start_date"); s != "" {
		t, err := time.Parse(model.DayFormat, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date format, use YYYY-MM-DD"})
			return
		}
		start = t
	}
	if s := c.Query("end_date"); s != "" {
		t, err := time.Parse(model.DayFormat, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date format, use YYYY-MM-DD"})
			return
		}
		// Through the end of the named day.
		end = t.Add(24*time.Hour - time.Nanosecond)
	}

	list, err := h.deps.Aggregator.Conversions(c.Request.Context(), c.Query("channel_id"), start, end)
	if err != nil {
		h.writeError(c, err, "Not found", "Failed to fetch conversions")
		return
	}
	if list == nil {
		list = []*model.ConversionEvent{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  list,
		"count": len(list),
		"period": gin.H{
			"start": model.Day(start),
			"end":   model.Day(end),
		},
	})
}

func (h *handlers) adminStats(c *gin.Context) {
	if h.deps.AdminStats == nil {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.deps.AdminStats()})
}
