package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rashenal/navigator/internal/bootstrap"
	"github.com/rashenal/navigator/internal/facade"
	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/models"
)

const maxRequestTimeout = 2 * time.Minute

// Handlers exposes the five core operations plus the admin emergency
// procedures over HTTP.
type Handlers struct {
	supervisor *bootstrap.Supervisor
	logger     logging.Logger
}

func New(supervisor *bootstrap.Supervisor, logger logging.Logger) *Handlers {
	return &Handlers{supervisor: supervisor, logger: logger}
}

// RegisterRoutes attaches the v1 surface to the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	{
		v1.POST("/complete", h.Complete)
		v1.GET("/config", h.GetConfig)
		v1.PATCH("/config", h.UpdateConfig)
		v1.GET("/status", h.GetStatus)
		v1.GET("/metrics", h.GetMetrics)

		admin := v1.Group("/admin")
		{
			admin.POST("/reinitialize", h.Reinitialize)
			admin.POST("/emergency/disable-optimization", h.EmergencyDisableOptimization)
			admin.POST("/emergency/reset", h.EmergencyReset)
		}
	}
}

// Complete handles POST /v1/complete.
func (h *Handlers) Complete(c *gin.Context) {
	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.TimeoutMs > 0 {
		timeout := time.Duration(req.TimeoutMs) * time.Millisecond
		if timeout > maxRequestTimeout {
			timeout = maxRequestTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := h.supervisor.Facade().Complete(ctx, req)
	if err != nil {
		c.JSON(completionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// completionStatus maps the error taxonomy onto HTTP codes.
func completionStatus(err error) int {
	switch {
	case errors.Is(err, facade.ErrCancelled):
		// Client closed or timed out the request.
		return http.StatusRequestTimeout
	case errors.Is(err, facade.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// GetConfig handles GET /v1/config.
func (h *Handlers) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.Current())
}

// UpdateConfig handles PATCH /v1/config with a partial document.
func (h *Handlers) UpdateConfig(c *gin.Context) {
	var patch models.OptimizationConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.supervisor.Apply(c.Request.Context(), patch)
	if err != nil {
		if errors.Is(err, facade.ErrConfigPersistence) {
			// The update applied in memory; persistence retries on the
			// next mutation.
			c.JSON(http.StatusOK, gin.H{"config": cfg, "warning": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// GetStatus handles GET /v1/status.
func (h *Handlers) GetStatus(c *gin.Context) {
	health := h.supervisor.Status(c.Request.Context())
	status := http.StatusOK
	if !health.Overall {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"health": health,
		"mode":   h.supervisor.Mode(),
	})
}

// GetMetrics handles GET /v1/metrics, the JSON aggregation surface.
// Prometheus scraping lives at /metrics on the shared router.
func (h *Handlers) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.Metrics(c.Request.Context()))
}

// Reinitialize handles POST /v1/admin/reinitialize.
func (h *Handlers) Reinitialize(c *gin.Context) {
	health := h.supervisor.Reinitialize(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"health": health,
		"mode":   h.supervisor.Mode(),
	})
}

// EmergencyDisableOptimization handles
// POST /v1/admin/emergency/disable-optimization.
func (h *Handlers) EmergencyDisableOptimization(c *gin.Context) {
	if err := h.supervisor.EmergencyDisableOptimization(c.Request.Context()); err != nil {
		if errors.Is(err, facade.ErrConfigPersistence) {
			// The mode transition already applied in memory.
			c.JSON(http.StatusOK, gin.H{"mode": h.supervisor.Mode(), "warning": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "mode": h.supervisor.Mode()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.supervisor.Mode()})
}

// EmergencyReset handles POST /v1/admin/emergency/reset.
func (h *Handlers) EmergencyReset(c *gin.Context) {
	if err := h.supervisor.EmergencyReset(c.Request.Context()); err != nil {
		if errors.Is(err, facade.ErrConfigPersistence) {
			c.JSON(http.StatusOK, gin.H{"mode": h.supervisor.Mode(), "warning": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "mode": h.supervisor.Mode()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.supervisor.Mode()})
}
