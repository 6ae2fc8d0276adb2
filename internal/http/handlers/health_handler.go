package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/utils"
)

// healthTimeLayout is ISO-8601 in UTC with millisecond precision.
const healthTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string `json:"status" example:"healthy"`
	Timestamp string `json:"timestamp" example:"2025-01-01T12:00:00.000Z"`
	Port      int    `json:"port" example:"5000"`
}

// Health godoc
// @ID          health
// @Summary     Liveness check
// @Description Always succeeds while the process is serving requests.
// @Tags        Health
// @Produce     json
// @Success     200  {object} handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(healthTimeLayout),
		Port:      utils.AtoiDefault(h.port, 0),
	})
}
