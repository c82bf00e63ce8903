package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tablequery/internal/metadata"
)

// Pinger checks connectivity of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db       Pinger
	registry *metadata.Registry
	version  string
}

// NewHealthHandler creates a new health handler. db may be nil when the
// service runs compile-only.
func NewHealthHandler(db Pinger, registry *metadata.Registry, version string) *HealthHandler {
	return &HealthHandler{db: db, registry: registry, version: version}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe: the schema is loaded and the database answers.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{}
	status := http.StatusOK

	if len(h.registry.List()) == 0 {
		checks["schema"] = "unhealthy: no tables registered"
		status = http.StatusServiceUnavailable
	} else {
		checks["schema"] = "healthy"
	}

	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "error"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":     "tablequery",
		"version": h.version,
		"tables":  len(h.registry.List()),
	})
}
