package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellside/dealgraph"
)

// HealthHandler serves the probe endpoints.
type HealthHandler struct {
	client *dealgraph.Client
}

func NewHealthHandler(client *dealgraph.Client) *HealthHandler {
	return &HealthHandler{client: client}
}

// Health handles GET /health. It reports process liveness only.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /ready. It pings both backing stores; a failure returns
// 503 so the load balancer routes around the instance.
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.client.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
