package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	logger *logger.Logger
	checks map[string]PingFunc
}

// NewHealthHandler creates a health handler. checks are run by Ready.
func NewHealthHandler(log *logger.Logger, checks map[string]PingFunc) *HealthHandler {
	if log == nil {
		log = logger.Production()
	}
	return &HealthHandler{logger: log, checks: checks}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready handles GET /ready by pinging every dependency.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", "dependency", name, "error", err)
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
}
