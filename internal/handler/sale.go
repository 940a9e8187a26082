package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/GoPolymarket/itemsale/internal/market"
	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/repository"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/gin-gonic/gin"
)

// EventReader is the read side of the event store.
type EventReader interface {
	List(ctx context.Context, filter repository.EventFilter) ([]model.Event, error)
	ByOrder(ctx context.Context, orderID string) (*model.Event, error)
}

type SaleHandler struct {
	svc    *service.SaleService
	board  *market.PriceBoard
	events EventReader
}

// NewSaleHandler builds the public read handlers. events may be nil when no
// event store is configured.
func NewSaleHandler(svc *service.SaleService, board *market.PriceBoard, events EventReader) *SaleHandler {
	return &SaleHandler{svc: svc, board: board, events: events}
}

func (h *SaleHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Config())
}

func (h *SaleHandler) OrderStatus(c *gin.Context) {
	orderID, err := parseUint("id", c.Param("id"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	used, err := h.svc.IsOrderUsed(c.Request.Context(), orderID)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "replay lookup failed", err))
		return
	}
	resp := model.OrderStatusResponse{OrderID: orderID.String(), Used: used}
	if used && h.events != nil {
		ev, err := h.events.ByOrder(c.Request.Context(), orderID.String())
		if err != nil {
			middleware.AddAuditContext(c, "event_lookup_error", err.Error())
		}
		resp.Settlement = ev
	}
	c.JSON(http.StatusOK, resp)
}

// Quote serves the advisory price of a batch. items defaults to 1.
func (h *SaleHandler) Quote(c *gin.Context) {
	items := 1
	if raw := c.Query("items"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.Error(apperrors.NewInvalidRequest("items must be a positive integer"))
			return
		}
		items = parsed
	}

	q, stale, err := h.board.Get(c.Request.Context(), items)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, model.QuoteResponse{
		Items:           q.Items,
		RequiredUtility: q.RequiredUtility.String(),
		ReferenceIn:     q.ReferenceIn.String(),
		ReferenceMaxIn:  q.ReferenceMaxIn.String(),
		Display:         q.Display.String(),
		UpdatedAt:       q.UpdatedAt.Unix(),
		Stale:           stale,
	})
}
