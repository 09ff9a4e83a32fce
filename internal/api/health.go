package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ivar-voice-assistant/backend/pkg/health"
)

// HealthController handles health check endpoints
type HealthController struct {
	checker *health.Checker
}

// NewHealthController creates a new health controller
func NewHealthController(checker *health.Checker) *HealthController {
	return &HealthController{checker: checker}
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler returns the basic liveness response
func (h *HealthController) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// ComponentsHandler reports per-component health from the checker
func (h *HealthController) ComponentsHandler(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "components": gin.H{}})
		return
	}
	h.checker.HTTPHandler()(c.Writer, c.Request)
}

// RegisterRoutes registers health check related routes
func (h *HealthController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthHandler)
	router.GET("/health/components", h.ComponentsHandler)
}
