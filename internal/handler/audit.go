package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List returns the caller's own audit trail, optionally narrowed to one order.
func (h *AuditHandler) List(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing caller context", nil))
		return
	}

	q := model.AuditQuery{CallerID: caller.ID(), Limit: 100}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.Error(apperrors.NewInvalidRequest("limit must be a positive integer").WithDetail("limit", raw))
			return
		}
		q.Limit = n
	}
	if raw := c.Query("order_id"); raw != "" {
		id, err := parseUint("order_id", raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		q.OrderID = id.String()
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()).WithDetail(bound.name, raw))
			return
		}
		*bound.dst = &t
	}

	records, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.Error(apperrors.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, records)
}
