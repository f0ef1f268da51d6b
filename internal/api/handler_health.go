package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	stateConnected     = "CONNECTED"
	stateDisconnected  = "DISCONNECTED"
	stateNotConfigured = "NOT_CONFIGURED"
)

// Health handles GET /api/health. It always answers 200 and reports WARNING
// when a dependency is unreachable.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "OK"
	database := stateConnected
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("health check: database unreachable", zap.Error(err))
		status = "WARNING"
		database = stateDisconnected
	}

	backend := h.listing.Backend()
	redisState := stateNotConfigured
	if backend.Name() == "redis" {
		redisState = stateConnected
		if err := backend.Ping(ctx); err != nil {
			h.log.Warn("health check: redis unreachable", zap.Error(err))
			status = "WARNING"
			redisState = stateDisconnected
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"database": database,
		"redis":    redisState,
		"cache":    backend.Name(),
	})
}
