package handler

import (
	"net/http"
	"strconv"

	"github.com/GoPolymarket/itemsale/internal/market"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/GoPolymarket/itemsale/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type EventsHandler struct {
	store EventReader
	hub   *market.EventHub
}

func NewEventsHandler(store EventReader, hub *market.EventHub) *EventsHandler {
	return &EventsHandler{store: store, hub: hub}
}

// List returns persisted events, newest first.
func (h *EventsHandler) List(c *gin.Context) {
	if h.store == nil {
		c.Error(apperrors.New(apperrors.ErrConfig, "event store not configured", nil))
		return
	}
	filter := repository.EventFilter{Kind: model.EventKind(c.Query("kind"))}
	if raw := c.Query("buyer"); raw != "" {
		if !common.IsHexAddress(raw) {
			c.Error(apperrors.NewInvalidRequest("buyer is not a hex address"))
			return
		}
		filter.Buyer = common.HexToAddress(raw).Hex()
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Limit = parsed
		}
	}
	if raw := c.Query("since"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		filter.Since = &t
	}

	events, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, events)
}

// Stream upgrades to a websocket carrying live events. ?buyer= narrows the
// feed to one buyer's purchases.
func (h *EventsHandler) Stream(c *gin.Context) {
	buyer := c.Query("buyer")
	if buyer != "" && !common.IsHexAddress(buyer) {
		c.Error(apperrors.NewInvalidRequest("buyer is not a hex address"))
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, buyer); err != nil {
		logger.Warn("event stream upgrade failed", "remote", c.ClientIP(), "error", err)
	}
}
