package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/ownership"
	"github.com/GoPolymarket/itemsale/internal/payment"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/GoPolymarket/itemsale/internal/pkg/metrics"
	"github.com/GoPolymarket/itemsale/internal/registry"
	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/GoPolymarket/itemsale/internal/signer"
	"github.com/ethereum/go-ethereum/common"
)

const (
	flowPaid  = "paid"
	flowFree  = "free"
	flowOwner = "owner"
)

// PaidPurchase is a buyer's submission of a signed PaidOrder. The buyer is the
// caller and is not part of the submission.
type PaidPurchase struct {
	OrderID      *big.Int
	ItemIDs      []*big.Int
	PaymentAsset common.Address
	Amount       *big.Int
	MinRevenue   *big.Int
	ExpiresAt    *big.Int
	Signature    []byte
}

type FreePurchase struct {
	OrderID   *big.Int
	ItemIDs   []*big.Int
	ExpiresAt *big.Int
	Signature []byte
}

// PurchaseAccounting is the per-call breakdown of a settlement.
type PurchaseAccounting struct {
	RequiredUtility        *big.Int `json:"required_utility"`
	BurnAmount             *big.Int `json:"burn_amount"`
	LiquidityAmount        *big.Int `json:"liquidity_amount"`
	RevenueAmountUtility   *big.Int `json:"revenue_amount_utility"`
	RevenueAmountReference *big.Int `json:"revenue_amount_reference"`
	ActualPaymentConsumed  *big.Int `json:"actual_payment_consumed"`
	RefundAmount           *big.Int `json:"refund_amount"`
}

func zeroAccounting() PurchaseAccounting {
	return PurchaseAccounting{
		RequiredUtility:        new(big.Int),
		BurnAmount:             new(big.Int),
		LiquidityAmount:        new(big.Int),
		RevenueAmountUtility:   new(big.Int),
		RevenueAmountReference: new(big.Int),
		ActualPaymentConsumed:  new(big.Int),
		RefundAmount:           new(big.Int),
	}
}

type Settlement struct {
	OrderID    *big.Int           `json:"order_id"`
	Buyer      common.Address     `json:"buyer"`
	ItemIDs    []*big.Int         `json:"item_ids"`
	Asset      common.Address     `json:"payment_asset"`
	Accounting PurchaseAccounting `json:"accounting"`
	EventID    string             `json:"event_id"`
}

func (s *SaleService) PurchasePaid(ctx context.Context, call chain.Call, p PaidPurchase) (*Settlement, error) {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	res, err := s.purchasePaid(ctx, call, p)
	s.observe(flowPaid, call.From, p.OrderID, len(p.ItemIDs), err)
	if err == nil {
		observeDistribution(res.Accounting)
	}
	return res, err
}

func (s *SaleService) purchasePaid(ctx context.Context, call chain.Call, p PaidPurchase) (*Settlement, error) {
	if p.MinRevenue == nil {
		p.MinRevenue = new(big.Int)
	}
	if err := checkWords(p.OrderID, p.Amount, p.MinRevenue, p.ExpiresAt); err != nil {
		return nil, err
	}
	reg, err := s.validateBatch(p.ItemIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.normalizer.Classify(p.PaymentAsset); err != nil {
		return nil, err
	}

	order := &signer.PaidOrder{
		OrderID:      p.OrderID,
		Buyer:        call.From,
		ItemIDs:      p.ItemIDs,
		PaymentAsset: p.PaymentAsset,
		Amount:       p.Amount,
		MinRevenue:   p.MinRevenue,
		ExpiresAt:    p.ExpiresAt,
	}
	if err := s.authorize(ctx, order.OrderID, order.ExpiresAt, s.codec.DigestPaid(order), p.Signature); err != nil {
		return nil, err
	}

	uow := s.begin()
	settlement, err := s.settlePaid(ctx, uow, reg, call, order)
	if err := uow.finish(ctx, err); err != nil {
		return nil, err
	}
	return settlement, nil
}

func (s *SaleService) settlePaid(ctx context.Context, uow *unitOfWork, reg registry.ItemRegistry, call chain.Call, order *signer.PaidOrder) (*Settlement, error) {
	if err := uow.markUsed(ctx, order.OrderID); err != nil {
		return nil, err
	}
	if err := s.normalizer.Collect(ctx, call, order.PaymentAsset, order.Amount); err != nil {
		return nil, err
	}

	acct := zeroAccounting()
	acct.RequiredUtility = s.RequiredUtility(len(order.ItemIDs))
	consumed, err := s.normalizer.NormalizeToUtility(ctx, order.PaymentAsset, order.Amount, acct.RequiredUtility)
	if err != nil {
		return nil, err
	}
	acct.ActualPaymentConsumed = consumed
	acct.RefundAmount = new(big.Int).Sub(order.Amount, consumed)

	dist, err := s.distributor.Distribute(ctx, acct.RequiredUtility, order.MinRevenue)
	if err != nil {
		return nil, err
	}
	acct.BurnAmount = dist.Burn
	acct.LiquidityAmount = dist.Liquidity
	acct.RevenueAmountUtility = dist.Revenue
	acct.RevenueAmountReference = dist.RevenueReferenceOut

	if err := s.mintAll(ctx, reg, order.ItemIDs, func(int) common.Address { return order.Buyer }); err != nil {
		return nil, err
	}

	if acct.RefundAmount.Sign() > 0 {
		if err := s.refund(ctx, order.Buyer, order.PaymentAsset, acct.RefundAmount); err != nil {
			return nil, fmt.Errorf("refund: %w", err)
		}
	}

	return s.recordSettlement(uow, order.OrderID, order.Buyer, order.ItemIDs, order.PaymentAsset, acct, false), nil
}

// refund returns excess payment. Utility excess is still on the engine
// balance and is transferred directly.
func (s *SaleService) refund(ctx context.Context, buyer, asset common.Address, amount *big.Int) error {
	class, err := s.normalizer.Classify(asset)
	if err != nil {
		return err
	}
	if class == payment.ClassUtility {
		return s.ledger.Transfer(s.cfg.UtilityAsset, s.cfg.Engine, buyer, amount)
	}
	return s.normalizer.RefundExcess(ctx, buyer, asset, amount)
}

func (s *SaleService) PurchaseFree(ctx context.Context, call chain.Call, p FreePurchase) (*Settlement, error) {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	res, err := s.purchaseFree(ctx, call, p)
	s.observe(flowFree, call.From, p.OrderID, len(p.ItemIDs), err)
	return res, err
}

func (s *SaleService) purchaseFree(ctx context.Context, call chain.Call, p FreePurchase) (*Settlement, error) {
	if err := checkWords(p.OrderID, p.ExpiresAt); err != nil {
		return nil, err
	}
	reg, err := s.validateBatch(p.ItemIDs)
	if err != nil {
		return nil, err
	}
	order := &signer.FreeOrder{
		OrderID:   p.OrderID,
		Buyer:     call.From,
		ItemIDs:   p.ItemIDs,
		ExpiresAt: p.ExpiresAt,
	}
	if err := s.authorize(ctx, order.OrderID, order.ExpiresAt, s.codec.DigestFree(order), p.Signature); err != nil {
		return nil, err
	}

	uow := s.begin()
	settlement, err := func() (*Settlement, error) {
		if err := uow.markUsed(ctx, order.OrderID); err != nil {
			return nil, err
		}
		if err := s.mintAll(ctx, reg, order.ItemIDs, func(int) common.Address { return order.Buyer }); err != nil {
			return nil, err
		}
		return s.recordSettlement(uow, order.OrderID, order.Buyer, order.ItemIDs, chain.NativeAsset, zeroAccounting(), true), nil
	}()
	if err := uow.finish(ctx, err); err != nil {
		return nil, err
	}
	return settlement, nil
}

// validateBatch runs the input checks shared by both purchase flows and
// returns the registry to mint into.
func (s *SaleService) validateBatch(itemIDs []*big.Int) (registry.ItemRegistry, error) {
	if len(itemIDs) == 0 {
		return nil, ErrEmptyItems
	}
	if len(itemIDs) > s.cfg.MaxBatchSize {
		return nil, &BatchTooLargeError{Size: len(itemIDs), Max: s.cfg.MaxBatchSize}
	}
	seen := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if !isWord(id) {
			return nil, fmt.Errorf("%w: item id", ErrInvalidOrderInput)
		}
		key := id.String()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, key)
		}
		seen[key] = struct{}{}
	}
	return s.currentRegistry()
}

// isWord reports whether v fits an unsigned 256-bit word, the range the
// order digest encodes without reduction.
func isWord(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

func checkWords(values ...*big.Int) error {
	for _, v := range values {
		if !isWord(v) {
			return ErrInvalidOrderInput
		}
	}
	return nil
}

// authorize runs replay, expiry and signature checks, cheapest first.
func (s *SaleService) authorize(ctx context.Context, orderID, expiresAt *big.Int, digest common.Hash, signature []byte) error {
	used, err := s.replay.IsUsed(ctx, orderID)
	if err != nil {
		return fmt.Errorf("replay lookup: %w", err)
	}
	if used {
		return replay.AlreadyUsed(orderID)
	}
	now := unixNow(s.now)
	if now.Cmp(expiresAt) > 0 {
		return &ExpiredError{ExpiresAt: new(big.Int).Set(expiresAt), Now: now}
	}
	if !s.verifier.Verify(ctx, digest, signature, s.Signer()) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *SaleService) mintAll(ctx context.Context, reg registry.ItemRegistry, itemIDs []*big.Int, to func(int) common.Address) error {
	for i, id := range itemIDs {
		if err := reg.SafeMint(ctx, s.cfg.Engine, to(i), id); err != nil {
			return fmt.Errorf("mint item %s: %w", id, err)
		}
	}
	return nil
}

func (s *SaleService) recordSettlement(uow *unitOfWork, orderID *big.Int, buyer common.Address, itemIDs []*big.Int, asset common.Address, acct PurchaseAccounting, free bool) *Settlement {
	ids := copyIDs(itemIDs)
	uow.emit(model.EventPurchaseSettled, func(ev *model.Event) {
		ev.Purchase = &model.PurchaseSettled{
			OrderID:               new(big.Int).Set(orderID),
			Buyer:                 buyer,
			ItemIDs:               ids,
			PaymentAsset:          asset,
			ActualPaymentConsumed: acct.ActualPaymentConsumed,
			RefundAmount:          acct.RefundAmount,
			BurnAmount:            acct.BurnAmount,
			LiquidityAmount:       acct.LiquidityAmount,
			RevenueAmount:         acct.RevenueAmountUtility,
			RevenueReferenceOut:   acct.RevenueAmountReference,
			RevenueRecipient:      s.cfg.RevenueRecipient,
			LiquidityRecipient:    s.cfg.LiquidityRecipient,
			Free:                  free,
		}
	})
	return &Settlement{
		OrderID:    new(big.Int).Set(orderID),
		Buyer:      buyer,
		ItemIDs:    ids,
		Asset:      asset,
		Accounting: acct,
		EventID:    uow.events[len(uow.events)-1].ID,
	}
}

func (s *SaleService) observe(flow string, caller common.Address, orderID *big.Int, items int, err error) {
	id := ""
	if orderID != nil {
		id = orderID.String()
	}
	log := logger.ForOrder(flow, id, caller.Hex())
	if err != nil {
		reason := rejectReason(err)
		metrics.SettlementsTotal.WithLabelValues(flow, "rejected").Inc()
		metrics.Rejects.WithLabelValues(reason).Inc()
		log.Warn("settlement rejected", "reason", reason, "error", err)
		return
	}
	metrics.SettlementsTotal.WithLabelValues(flow, "settled").Inc()
	metrics.ItemsMinted.WithLabelValues(flow).Add(float64(items))
	log.Info("settlement applied", "items", items)
}

func observeDistribution(acct PurchaseAccounting) {
	legs := map[string]*big.Int{
		"burn":      acct.BurnAmount,
		"liquidity": acct.LiquidityAmount,
		"revenue":   acct.RevenueAmountUtility,
	}
	for leg, amount := range legs {
		v, _ := new(big.Float).SetInt(amount).Float64()
		metrics.DistributionUnits.WithLabelValues(leg).Add(v)
	}
}

func rejectReason(err error) string {
	var (
		batch    *BatchTooLargeError
		expired  *ExpiredError
		mismatch *LengthMismatchError
		amount   *payment.AmountMismatchError
	)
	switch {
	case errors.Is(err, replay.ErrAlreadyUsed):
		return "replayed"
	case errors.As(err, &expired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrEmptyItems), errors.As(err, &batch), errors.Is(err, ErrDuplicateItem), errors.As(err, &mismatch):
		return "invalid_batch"
	case errors.Is(err, payment.ErrUnsupportedAsset):
		return "unsupported_asset"
	case errors.As(err, &amount):
		return "amount_mismatch"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, ownership.ErrNotOwner):
		return "not_owner"
	default:
		return "settlement_failed"
	}
}

func copyIDs(ids []*big.Int) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).Set(id)
	}
	return out
}
