package handlers

import (
	"net/http"
	"os/exec"

	"github.com/gin-gonic/gin"

	"github.com/trippixn/mediagrab/internal/domain"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	config *domain.Config
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(config *domain.Config) *HealthHandler {
	return &HealthHandler{
		config: config,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	})
}

// Ready handles GET /ready. The service is ready only when both external
// tools are on PATH; without them every request would fail.
func (h *HealthHandler) Ready(c *gin.Context) {
	for _, binary := range []string{h.config.Fetch.YTDLPBinary, h.config.Transcode.FFmpegBinary} {
		if _, err := exec.LookPath(binary); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": binary + " not found in PATH",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
