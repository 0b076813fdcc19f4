package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/order-import-sync/internal/aggregator"
	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// Handler handles API requests
type Handler struct {
	storage    storage.Storage
	aggregator aggregator.Aggregator
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage, agg aggregator.Aggregator) *Handler {
	return &Handler{
		storage:    store,
		aggregator: agg,
	}
}

// ListRuns returns run summaries, newest first
// GET /api/v1/runs?target=&start=&end=&limit=
func (h *Handler) ListRuns(c *gin.Context) {
	timeRange, err := parseTimeRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit := parseIntQuery(c, "limit", defaultRunLimit)
	if limit <= 0 || limit > maxRunLimit {
		limit = maxRunLimit
	}

	runs, err := h.storage.ListRuns(c.Request.Context(), c.Query("target"), timeRange, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]*domain.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, run.Summary())
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summaries,
	})
}

// GetRun returns the full outcome of one run
// GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.storage.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// GetTargetStats returns aggregated statistics for one target
// GET /api/v1/targets/:target/stats?start=&end=
func (h *Handler) GetTargetStats(c *gin.Context) {
	timeRange, err := parseTimeRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.aggregator.TargetStats(c.Request.Context(), c.Param("target"), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// ListTargetStats returns aggregated statistics for every target
// GET /api/v1/targets/stats?start=&end=
func (h *Handler) ListTargetStats(c *gin.Context) {
	timeRange, err := parseTimeRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.aggregator.AllTargets(c.Request.Context(), timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// HealthCheck returns the health status
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// parseTimeRange reads start and end dates (YYYY-MM-DD). Missing bounds stay
// open; the end date is inclusive.
func parseTimeRange(c *gin.Context) (domain.TimeRange, error) {
	var timeRange domain.TimeRange

	if startStr := c.Query("start"); startStr != "" {
		start, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return timeRange, apperrors.NewBadRequestError("invalid start date: " + startStr)
		}
		timeRange.Start = start
	}

	if endStr := c.Query("end"); endStr != "" {
		end, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return timeRange, apperrors.NewBadRequestError("invalid end date: " + endStr)
		}
		timeRange.End = end.Add(24*time.Hour - time.Nanosecond)
	}

	if !timeRange.Start.IsZero() && !timeRange.End.IsZero() && timeRange.End.Before(timeRange.Start) {
		return timeRange, apperrors.NewBadRequestError("end date is before start date")
	}
	return timeRange, nil
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
