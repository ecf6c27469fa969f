package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/fetch-install-go/internal/app"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping() error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	service *app.TransferService
	store   Pinger
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *app.TransferService, store Pinger, version string) *HealthHandler {
	return &HealthHandler{
		service: service,
		store:   store,
		version: version,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Transfers struct {
		Active int `json:"active"`
	} `json:"transfers"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	response.Transfers.Active = h.service.ActiveCount()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "record store unavailable: " + err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
