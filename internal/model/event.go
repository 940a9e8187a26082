package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventPurchaseSettled          EventKind = "PurchaseSettled"
	EventBatchMinted              EventKind = "BatchMinted"
	EventSignerUpdated            EventKind = "SignerUpdated"
	EventItemRegistryUpdated      EventKind = "ItemRegistryUpdated"
	EventOwnershipTransferStarted EventKind = "OwnershipTransferStarted"
	EventOwnershipTransferred     EventKind = "OwnershipTransferred"
)

// PurchaseSettled 一次结算 (付费或免费) 的完整记账
type PurchaseSettled struct {
	OrderID               *big.Int       `json:"order_id"`
	Buyer                 common.Address `json:"buyer"`
	ItemIDs               []*big.Int     `json:"item_ids"`
	PaymentAsset          common.Address `json:"payment_asset"`
	ActualPaymentConsumed *big.Int       `json:"actual_payment_consumed"`
	RefundAmount          *big.Int       `json:"refund_amount"`
	BurnAmount            *big.Int       `json:"burn_amount"`
	LiquidityAmount       *big.Int       `json:"liquidity_amount"`
	RevenueAmount         *big.Int       `json:"revenue_amount"`
	RevenueReferenceOut   *big.Int       `json:"revenue_reference_out"`
	RevenueRecipient      common.Address `json:"revenue_recipient"`
	LiquidityRecipient    common.Address `json:"liquidity_recipient"`
	Free                  bool           `json:"free"`
}

// BatchMinted 管理员直接铸造
type BatchMinted struct {
	Operator   common.Address   `json:"operator"`
	Recipients []common.Address `json:"recipients"`
	ItemIDs    []*big.Int       `json:"item_ids"`
}

type AddressChange struct {
	Previous common.Address `json:"previous"`
	New      common.Address `json:"new"`
}

// Event is a settlement-engine event. Exactly one payload field is set.
type Event struct {
	ID        string           `json:"id"`
	Kind      EventKind        `json:"kind"`
	Purchase  *PurchaseSettled `json:"purchase,omitempty"`
	Mint      *BatchMinted     `json:"mint,omitempty"`
	Change    *AddressChange   `json:"change,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
