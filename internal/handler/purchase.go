package handler

import (
	"math/big"
	"net/http"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/gin-gonic/gin"
)

type PurchaseHandler struct {
	svc *service.SaleService
}

func NewPurchaseHandler(svc *service.SaleService) *PurchaseHandler {
	return &PurchaseHandler{svc: svc}
}

// Paid settles a signed paid order for the authenticated caller.
func (h *PurchaseHandler) Paid(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing caller context", nil))
		return
	}

	var req model.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	purchase, value, err := paidFromRequest(req)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	middleware.AddAuditContext(c, "order_id", purchase.OrderID.String())

	settlement, err := h.svc.PurchasePaid(c.Request.Context(), chain.Call{From: caller.Address, Value: value}, purchase)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	middleware.AddAuditContext(c, "event_id", settlement.EventID)
	c.JSON(http.StatusOK, settlement)
}

// Free settles a signed free claim for the authenticated caller.
func (h *PurchaseHandler) Free(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing caller context", nil))
		return
	}

	var req model.FreePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	purchase, err := freeFromRequest(req)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	middleware.AddAuditContext(c, "order_id", purchase.OrderID.String())

	settlement, err := h.svc.PurchaseFree(c.Request.Context(), chain.Call{From: caller.Address}, purchase)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	middleware.AddAuditContext(c, "event_id", settlement.EventID)
	c.JSON(http.StatusOK, settlement)
}

func paidFromRequest(req model.PurchaseRequest) (service.PaidPurchase, *big.Int, error) {
	var p service.PaidPurchase
	var err error
	if p.OrderID, err = parseUint("order_id", req.OrderID); err != nil {
		return p, nil, err
	}
	if p.ItemIDs, err = parseUintList("item_ids", req.ItemIDs); err != nil {
		return p, nil, err
	}
	if p.PaymentAsset, err = parseAsset(req.PaymentAsset); err != nil {
		return p, nil, err
	}
	if p.Amount, err = parseUint("amount", req.Amount); err != nil {
		return p, nil, err
	}
	if p.MinRevenue, err = parseOptionalUint("min_revenue", req.MinRevenue); err != nil {
		return p, nil, err
	}
	if p.ExpiresAt, err = parseUint("expires_at", req.ExpiresAt); err != nil {
		return p, nil, err
	}
	if p.Signature, err = parseSignature(req.Signature); err != nil {
		return p, nil, err
	}
	value, err := parseOptionalUint("value", req.Value)
	if err != nil {
		return p, nil, err
	}
	return p, value, nil
}

func freeFromRequest(req model.FreePurchaseRequest) (service.FreePurchase, error) {
	var p service.FreePurchase
	var err error
	if p.OrderID, err = parseUint("order_id", req.OrderID); err != nil {
		return p, err
	}
	if p.ItemIDs, err = parseUintList("item_ids", req.ItemIDs); err != nil {
		return p, err
	}
	if p.ExpiresAt, err = parseUint("expires_at", req.ExpiresAt); err != nil {
		return p, err
	}
	if p.Signature, err = parseSignature(req.Signature); err != nil {
		return p, err
	}
	return p, nil
}
