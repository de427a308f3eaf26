package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/gin-gonic/gin"
)

func (h *Handler) teamMetrics(c *gin.Context) {
	view, err := h.metrics.TeamView(c.Request.Context())
	if err != nil {
		errors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) memberMetrics(c *gin.Context) {
	view, err := h.metrics.MemberView(c.Request.Context(), c.Param("code"))
	if err != nil {
		errors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) calculateMetrics(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.metrics.CalculateForAssessment(c.Request.Context(), id)

	written, skipped := 0, 0
	if result != nil {
		written, skipped = result.Count, result.Skipped
	}
	h.monitor.RecordCalculation(written, err)
	h.logger.CalculationLogger(id, written, skipped, time.Since(start), err)

	if err != nil {
		errors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

const healthTimeout = 2 * time.Second

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	database := gin.H{"status": "ok", "pool": h.store.Stats()}
	if err := h.store.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		database["status"] = "unavailable"
		database["error"] = err.Error()
	}

	cacheStats := h.metrics.CacheStats()
	if cacheStats == nil {
		cacheStats = map[string]interface{}{"enabled": false}
	}

	rateLimiter := map[string]interface{}{"enabled": false}
	if h.limiter != nil {
		rateLimiter = h.limiter.GetStats()
		rateLimiter["blocks"] = h.monitor.GetRateLimitStats()
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":      overall,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     h.version,
		"database":    database,
		"cache":       cacheStats,
		"rateLimiter": rateLimiter,
		"requests":    h.monitor.GetStats(),
	})
}
