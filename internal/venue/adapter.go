package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	ErrInvalidPool       = errors.New("pool must hold exactly two assets, one of them the utility asset")
	ErrSwapLimitExceeded = errors.New("swap limit exceeded")
	ErrAssetNotInPool    = errors.New("asset not tradable in pool")
	// ErrQuoteInSettlement keeps advisory quotes out of any unit of work that
	// also executes the priced swap.
	ErrQuoteInSettlement = errors.New("quote requested inside a settlement")
)

// SwapInvariantViolationError reports vault deltas that disagree with the request.
type SwapInvariantViolationError struct {
	Kind   SwapKind
	Deltas []*big.Int
}

func (e *SwapInvariantViolationError) Error() string {
	return fmt.Sprintf("swap invariant violation: %s deltas %v", e.Kind, e.Deltas)
}

// InsufficientOutputError is returned by SwapExactIn when the venue paid less than the floor.
type InsufficientOutputError struct {
	Min    *big.Int
	Actual *big.Int
}

func (e *InsufficientOutputError) Error() string {
	return fmt.Sprintf("insufficient output: min %s, actual %s", e.Min, e.Actual)
}

// Ledger is the slice of token state the adapter needs to grant and read.
type Ledger interface {
	BalanceOf(asset, holder common.Address) *big.Int
	Approve(asset, owner, spender common.Address, amount *big.Int)
}

type AdapterConfig struct {
	PoolID  PoolID
	Utility common.Address
	// Sender owns the funds the adapter trades (the engine).
	Sender common.Address
}

// Adapter wraps a two-asset pool behind exact-in / exact-out primitives.
type Adapter struct {
	vault  Vault
	ledger Ledger
	cfg    AdapterConfig

	utilityIndex   int
	referenceIndex int
	tokens         [2]common.Address
}

// NewAdapter resolves the pool's token ordering once.
func NewAdapter(ctx context.Context, vault Vault, ledger Ledger, cfg AdapterConfig) (*Adapter, error) {
	tokens, _, err := vault.GetPoolTokens(ctx, cfg.PoolID)
	if err != nil {
		return nil, fmt.Errorf("resolve pool tokens: %w", err)
	}
	if len(tokens) != 2 {
		return nil, fmt.Errorf("%w: got %d tokens", ErrInvalidPool, len(tokens))
	}
	a := &Adapter{vault: vault, ledger: ledger, cfg: cfg}
	switch cfg.Utility {
	case tokens[0]:
		a.utilityIndex, a.referenceIndex = 0, 1
	case tokens[1]:
		a.utilityIndex, a.referenceIndex = 1, 0
	default:
		return nil, fmt.Errorf("%w: utility %s not in pool", ErrInvalidPool, cfg.Utility.Hex())
	}
	if tokens[a.referenceIndex] == cfg.Utility {
		return nil, ErrInvalidPool
	}
	a.tokens = [2]common.Address{tokens[0], tokens[1]}
	return a, nil
}

func (a *Adapter) Vault() common.Address          { return a.vault.Address() }
func (a *Adapter) PoolID() PoolID                 { return a.cfg.PoolID }
func (a *Adapter) UtilityIndex() int              { return a.utilityIndex }
func (a *Adapter) ReferenceToken() common.Address { return a.tokens[a.referenceIndex] }

// Quote estimates the native value needed to buy utilityOut. It is a
// non-committing simulation and refuses to run inside a settlement.
func (a *Adapter) Quote(ctx context.Context, utilityOut *big.Int) (*big.Int, error) {
	if chain.Executing(ctx) {
		return nil, ErrQuoteInSettlement
	}
	assets := []common.Address{chain.NativeAsset, a.cfg.Utility}
	deltas, err := a.vault.QueryBatchSwap(ctx, GivenOut, a.step(utilityOut), assets, a.funds(a.cfg.Sender))
	if err != nil {
		return nil, err
	}
	if len(deltas) != 2 || deltas[0].Sign() <= 0 {
		return nil, &SwapInvariantViolationError{Kind: GivenOut, Deltas: deltas}
	}
	return new(big.Int).Set(deltas[0]), nil
}

// SwapExactOut buys exactly exactOut of tokenOut spending at most maxIn of tokenIn.
func (a *Adapter) SwapExactOut(ctx context.Context, tokenIn, tokenOut common.Address, maxIn, exactOut *big.Int, recipient common.Address) (*big.Int, error) {
	if err := a.checkPair(tokenIn, tokenOut); err != nil {
		return nil, err
	}
	call := a.prepare(tokenIn, maxIn)
	defer a.clearApproval(tokenIn)

	assets := []common.Address{tokenIn, tokenOut}
	limits := []*big.Int{new(big.Int).Set(maxIn), new(big.Int).Neg(exactOut)}
	deltas, err := a.vault.BatchSwap(ctx, call, GivenOut, a.step(exactOut), assets, a.funds(recipient), limits, math.MaxBig256)
	if err != nil {
		if errors.Is(err, ErrVaultSwapLimit) {
			return nil, fmt.Errorf("%w: max in %s", ErrSwapLimitExceeded, maxIn)
		}
		return nil, fmt.Errorf("batch swap: %w", err)
	}
	if len(deltas) != 2 ||
		deltas[0].Sign() <= 0 ||
		deltas[0].Cmp(maxIn) > 0 ||
		new(big.Int).Neg(deltas[1]).Cmp(exactOut) != 0 {
		return nil, &SwapInvariantViolationError{Kind: GivenOut, Deltas: deltas}
	}
	return new(big.Int).Set(deltas[0]), nil
}

// SwapExactIn sells exactly exactIn of tokenIn. The venue-side minimum is
// left open and minOut is enforced on the reported delta.
func (a *Adapter) SwapExactIn(ctx context.Context, tokenIn, tokenOut common.Address, exactIn, minOut *big.Int, recipient common.Address) (*big.Int, error) {
	if err := a.checkPair(tokenIn, tokenOut); err != nil {
		return nil, err
	}
	call := a.prepare(tokenIn, exactIn)
	defer a.clearApproval(tokenIn)

	assets := []common.Address{tokenIn, tokenOut}
	limits := []*big.Int{new(big.Int).Set(exactIn), new(big.Int)}
	deltas, err := a.vault.BatchSwap(ctx, call, GivenIn, a.step(exactIn), assets, a.funds(recipient), limits, math.MaxBig256)
	if err != nil {
		if errors.Is(err, ErrVaultSwapLimit) {
			return nil, fmt.Errorf("%w: exact in %s", ErrSwapLimitExceeded, exactIn)
		}
		return nil, fmt.Errorf("batch swap: %w", err)
	}
	if len(deltas) != 2 || deltas[0].Cmp(exactIn) != 0 || deltas[1].Sign() > 0 {
		return nil, &SwapInvariantViolationError{Kind: GivenIn, Deltas: deltas}
	}
	out := new(big.Int).Neg(deltas[1])
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, &InsufficientOutputError{Min: new(big.Int).Set(minOut), Actual: out}
	}
	return out, nil
}

// JoinSingleSided adds utility-only liquidity with an exact-tokens-in join and
// returns the pool-share receipt credited to recipient.
func (a *Adapter) JoinSingleSided(ctx context.Context, utilityAmount *big.Int, recipient common.Address) (*big.Int, error) {
	amounts := []*big.Int{new(big.Int), new(big.Int)}
	amounts[a.utilityIndex] = new(big.Int).Set(utilityAmount)
	userData, err := EncodeExactTokensInJoin(amounts, new(big.Int))
	if err != nil {
		return nil, err
	}

	a.ledger.Approve(a.cfg.Utility, a.cfg.Sender, a.vault.Address(), utilityAmount)
	defer a.clearApproval(a.cfg.Utility)

	bpt := a.cfg.PoolID.Address()
	before := a.ledger.BalanceOf(bpt, recipient)
	req := JoinPoolRequest{
		Assets:       []common.Address{a.tokens[0], a.tokens[1]},
		MaxAmountsIn: amounts,
		UserData:     userData,
	}
	if err := a.vault.JoinPool(ctx, chain.Call{From: a.cfg.Sender}, a.cfg.PoolID, a.cfg.Sender, recipient, req); err != nil {
		return nil, fmt.Errorf("join pool: %w", err)
	}
	return new(big.Int).Sub(a.ledger.BalanceOf(bpt, recipient), before), nil
}

func (a *Adapter) step(amount *big.Int) []BatchSwapStep {
	return []BatchSwapStep{{
		PoolId:        a.cfg.PoolID,
		AssetInIndex:  big.NewInt(0),
		AssetOutIndex: big.NewInt(1),
		Amount:        new(big.Int).Set(amount),
	}}
}

func (a *Adapter) funds(recipient common.Address) FundManagement {
	return FundManagement{Sender: a.cfg.Sender, Recipient: recipient}
}

// checkPair accepts the utility asset against the pool's reference token or
// the native sentinel, which the vault wraps and unwraps.
func (a *Adapter) checkPair(tokenIn, tokenOut common.Address) error {
	ref := a.tokens[a.referenceIndex]
	isRef := func(t common.Address) bool { return t == ref || t == chain.NativeAsset }
	switch {
	case tokenIn == a.cfg.Utility && isRef(tokenOut):
		return nil
	case tokenOut == a.cfg.Utility && isRef(tokenIn):
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrAssetNotInPool, tokenIn.Hex(), tokenOut.Hex())
	}
}

func (a *Adapter) prepare(tokenIn common.Address, amount *big.Int) chain.Call {
	if tokenIn == chain.NativeAsset {
		return chain.Call{From: a.cfg.Sender, Value: new(big.Int).Set(amount)}
	}
	a.ledger.Approve(tokenIn, a.cfg.Sender, a.vault.Address(), amount)
	return chain.Call{From: a.cfg.Sender}
}

func (a *Adapter) clearApproval(token common.Address) {
	if token != chain.NativeAsset {
		a.ledger.Approve(token, a.cfg.Sender, a.vault.Address(), new(big.Int))
	}
}
