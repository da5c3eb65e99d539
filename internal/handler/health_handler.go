package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collab-engine/internal/registry"
	"collab-engine/internal/storage"
)

type HealthHandler struct {
	registry *registry.Registry
	store    storage.Store
}

func NewHealthHandler(reg *registry.Registry, store storage.Store) *HealthHandler {
	return &HealthHandler{registry: reg, store: store}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "collab-engine",
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.store.Load(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "storage not reachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"workspaces": h.registry.Count(),
	})
}
