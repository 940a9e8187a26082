package handler

import (
	"net/http"

	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// ReadOnlyRoute is exempt from the read-only gate so maintenance can be lifted.
const ReadOnlyRoute = "/v1/admin/read-only"

type MaintenanceHandler struct {
	mode *middleware.ReadOnlyMode
}

func NewMaintenanceHandler(mode *middleware.ReadOnlyMode) *MaintenanceHandler {
	return &MaintenanceHandler{mode: mode}
}

func (h *MaintenanceHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"read_only": h.mode.Enabled()})
}

func (h *MaintenanceHandler) Set(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	changed := h.mode.Set(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"read_only": *req.Enabled, "changed": changed})
}
