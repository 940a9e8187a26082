package handler

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the owner operations. The caller address is checked
// against the current owner by the engine itself.
type AdminHandler struct {
	svc *service.SaleService
}

func NewAdminHandler(svc *service.SaleService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) Mint(c *gin.Context) {
	call, ok := callerCall(c)
	if !ok {
		return
	}
	var req model.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	recipients, err := parseAddressList("recipients", req.Recipients)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	itemIDs, err := parseUintList("item_ids", req.ItemIDs)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	middleware.AddAuditContext(c, "action", "mint_by_owner")
	if err := h.svc.MintByOwner(c.Request.Context(), call, recipients, itemIDs); err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"minted": len(itemIDs)})
}

func (h *AdminHandler) SetSigner(c *gin.Context) {
	h.setAddress(c, "set_signer", h.svc.SetSigner)
}

func (h *AdminHandler) SetItemRegistry(c *gin.Context) {
	h.setAddress(c, "set_item_registry", h.svc.SetItemRegistry)
}

func (h *AdminHandler) TransferOwnership(c *gin.Context) {
	h.setAddress(c, "transfer_ownership", func(ctx context.Context, call chain.Call, next common.Address) (bool, error) {
		return true, h.svc.TransferOwnership(ctx, call, next)
	})
}

func (h *AdminHandler) AcceptOwnership(c *gin.Context) {
	call, ok := callerCall(c)
	if !ok {
		return
	}
	middleware.AddAuditContext(c, "action", "accept_ownership")
	if err := h.svc.AcceptOwnership(c.Request.Context(), call); err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": h.svc.Owner()})
}

// RenounceOwnership is routed so callers get a definite refusal.
func (h *AdminHandler) RenounceOwnership(c *gin.Context) {
	call, ok := callerCall(c)
	if !ok {
		return
	}
	middleware.AddAuditContext(c, "action", "renounce_ownership")
	if err := h.svc.RenounceOwnership(c.Request.Context(), call); err != nil {
		c.Error(toAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) setAddress(c *gin.Context, action string, apply func(context.Context, chain.Call, common.Address) (bool, error)) {
	call, ok := callerCall(c)
	if !ok {
		return
	}
	var req model.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	middleware.AddAuditContext(c, "action", action)
	changed, err := apply(c.Request.Context(), call, addr)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "changed": changed})
}

func callerCall(c *gin.Context) (chain.Call, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing caller context", nil))
		return chain.Call{}, false
	}
	return chain.Call{From: caller.Address}, true
}
