package model

// Amounts and identifiers travel as decimal strings; addresses as 0x hex.

// PurchaseRequest submits a signed paid order. The buyer is the authenticated caller.
type PurchaseRequest struct {
	OrderID      string   `json:"order_id" binding:"required"`
	ItemIDs      []string `json:"item_ids" binding:"required"`
	PaymentAsset string   `json:"payment_asset"` // empty or zero address = native
	Amount       string   `json:"amount" binding:"required"`
	MinRevenue   string   `json:"min_revenue,omitempty"`
	ExpiresAt    string   `json:"expires_at" binding:"required"` // unix seconds
	Signature    string   `json:"signature" binding:"required"`
	Value        string   `json:"value,omitempty"` // native value attached to the call
}

type FreePurchaseRequest struct {
	OrderID   string   `json:"order_id" binding:"required"`
	ItemIDs   []string `json:"item_ids" binding:"required"`
	ExpiresAt string   `json:"expires_at" binding:"required"`
	Signature string   `json:"signature" binding:"required"`
}

type MintRequest struct {
	Recipients []string `json:"recipients" binding:"required"`
	ItemIDs    []string `json:"item_ids" binding:"required"`
}

// AddressRequest carries the new value for signer, registry and ownership updates.
type AddressRequest struct {
	Address string `json:"address" binding:"required"`
}

type OrderStatusResponse struct {
	OrderID    string `json:"order_id"`
	Used       bool   `json:"used"`
	Settlement *Event `json:"settlement,omitempty"`
}

type QuoteResponse struct {
	Items           int    `json:"items"`
	RequiredUtility string `json:"required_utility"`
	ReferenceIn     string `json:"reference_in"`
	ReferenceMaxIn  string `json:"reference_max_in"` // reference_in plus slippage allowance
	Display         string `json:"display"`          // reference_in in whole units
	UpdatedAt       int64  `json:"updated_at"`
	Stale           bool   `json:"stale"`
}
