package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

// Class is the payment kind of an asset.
type Class int

const (
	ClassInvalid Class = iota
	ClassReference
	ClassWrappedReference
	ClassUtility
)

func (c Class) String() string {
	switch c {
	case ClassReference:
		return "reference"
	case ClassWrappedReference:
		return "wrapped_reference"
	case ClassUtility:
		return "utility"
	default:
		return "invalid"
	}
}

var ErrUnsupportedAsset = errors.New("unsupported payment asset")

type AmountMismatchError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount mismatch: expected %s, got %s", e.Expected, e.Actual)
}

type InsufficientPaymentError struct {
	Required *big.Int
	Paid     *big.Int
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: required %s, paid %s", e.Required, e.Paid)
}

type Ledger interface {
	BalanceOf(asset, holder common.Address) *big.Int
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
}

type Swapper interface {
	SwapExactOut(ctx context.Context, tokenIn, tokenOut common.Address, maxIn, exactOut *big.Int, recipient common.Address) (*big.Int, error)
}

// ReferenceMinter issues the redeemable reference token against native value.
type ReferenceMinter interface {
	Token() common.Address
	Mint(ctx context.Context, call chain.Call, to common.Address) error
	Redeem(ctx context.Context, holder common.Address, amount *big.Int) error
}

type Config struct {
	Engine  common.Address
	Utility common.Address
}

// Normalizer turns a buyer's payment into exactly the utility amount a
// purchase requires. The engine never keeps a balance of the redeemable
// token: it is redeemed on the way in and re-minted for refunds.
type Normalizer struct {
	cfg     Config
	ledger  Ledger
	swapper Swapper
	minter  ReferenceMinter
}

func NewNormalizer(cfg Config, ledger Ledger, swapper Swapper, minter ReferenceMinter) *Normalizer {
	return &Normalizer{cfg: cfg, ledger: ledger, swapper: swapper, minter: minter}
}

func (n *Normalizer) Classify(asset common.Address) (Class, error) {
	switch {
	case asset == chain.NativeAsset:
		return ClassReference, nil
	case n.minter != nil && asset == n.minter.Token():
		return ClassWrappedReference, nil
	case asset == n.cfg.Utility:
		return ClassUtility, nil
	default:
		return ClassInvalid, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset.Hex())
	}
}

// Collect moves amount of asset from call.From to the engine. Native payments
// must attach exactly amount; token payments must attach nothing and deliver
// exactly amount to the engine.
func (n *Normalizer) Collect(_ context.Context, call chain.Call, asset common.Address, amount *big.Int) error {
	class, err := n.Classify(asset)
	if err != nil {
		return err
	}
	value := call.AttachedValue()
	if class == ClassReference {
		if value.Cmp(amount) != 0 {
			return &AmountMismatchError{Expected: new(big.Int).Set(amount), Actual: new(big.Int).Set(value)}
		}
		return n.ledger.Transfer(chain.NativeAsset, call.From, n.cfg.Engine, value)
	}
	if value.Sign() != 0 {
		return &AmountMismatchError{Expected: new(big.Int), Actual: new(big.Int).Set(value)}
	}

	before := n.ledger.BalanceOf(asset, n.cfg.Engine)
	if err := n.ledger.TransferFrom(asset, n.cfg.Engine, call.From, n.cfg.Engine, amount); err != nil {
		return fmt.Errorf("collect %s: %w", class, err)
	}
	received := new(big.Int).Sub(n.ledger.BalanceOf(asset, n.cfg.Engine), before)
	if received.Cmp(amount) != 0 {
		return &AmountMismatchError{Expected: new(big.Int).Set(amount), Actual: received}
	}
	return nil
}

// NormalizeToUtility leaves the engine holding required utility units and
// returns how much of the paid asset was consumed.
func (n *Normalizer) NormalizeToUtility(ctx context.Context, asset common.Address, paid, required *big.Int) (*big.Int, error) {
	class, err := n.Classify(asset)
	if err != nil {
		return nil, err
	}
	switch class {
	case ClassUtility:
		if paid.Cmp(required) < 0 {
			return nil, &InsufficientPaymentError{Required: new(big.Int).Set(required), Paid: new(big.Int).Set(paid)}
		}
		return new(big.Int).Set(required), nil
	case ClassWrappedReference:
		if err := n.minter.Redeem(ctx, n.cfg.Engine, paid); err != nil {
			return nil, fmt.Errorf("redeem reference token: %w", err)
		}
	}
	return n.swapper.SwapExactOut(ctx, chain.NativeAsset, n.cfg.Utility, paid, required, n.cfg.Engine)
}

// RefundExcess returns amount of the original payment asset to buyer. Utility
// refunds are settled by the caller.
func (n *Normalizer) RefundExcess(ctx context.Context, buyer, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	class, err := n.Classify(asset)
	if err != nil {
		return err
	}
	switch class {
	case ClassReference:
		return n.ledger.Transfer(chain.NativeAsset, n.cfg.Engine, buyer, amount)
	case ClassWrappedReference:
		return n.minter.Mint(ctx, chain.Call{From: n.cfg.Engine, Value: new(big.Int).Set(amount)}, buyer)
	default:
		return nil
	}
}
