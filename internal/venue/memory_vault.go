package venue

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

const bpsDenominator = 10_000

type memoryPool struct {
	id      PoolID
	address common.Address
	tokens  [2]common.Address
	feeBps  uint64
}

// MemoryVault is an in-process Balancer-style vault over chain.State hosting
// 50/50 constant-product pools. Pool balances are held at the pool address and
// the pool address doubles as its share token. Native value is wrapped into
// the weth token on the way in and unwrapped on the way out.
type MemoryVault struct {
	address common.Address
	weth    common.Address
	state   *chain.State
	now     func() time.Time

	mu    sync.RWMutex
	pools map[PoolID]*memoryPool
	nonce uint64
}

func NewMemoryVault(state *chain.State, address, weth common.Address) *MemoryVault {
	return &MemoryVault{
		address: address,
		weth:    weth,
		state:   state,
		now:     time.Now,
		pools:   make(map[PoolID]*memoryPool),
	}
}

func (v *MemoryVault) Address() common.Address { return v.address }
func (v *MemoryVault) WETH() common.Address    { return v.weth }

// RegisterPool registers a two-token pool; tokens are stored address-sorted.
func (v *MemoryVault) RegisterPool(pool common.Address, a, b common.Address, feeBps uint64) PoolID {
	tokens := [2]common.Address{a, b}
	sort.Slice(tokens[:], func(i, j int) bool { return bytes.Compare(tokens[i][:], tokens[j][:]) < 0 })

	v.mu.Lock()
	defer v.mu.Unlock()
	v.nonce++
	id := NewPoolID(pool, v.nonce)
	v.pools[id] = &memoryPool{id: id, address: pool, tokens: tokens, feeBps: feeBps}
	return id
}

// PoolTokenIndex returns token's slot in the pool, or -1.
func (v *MemoryVault) PoolTokenIndex(poolID PoolID, token common.Address) int {
	pool, err := v.pool(poolID)
	if err != nil {
		return -1
	}
	for i, t := range pool.tokens {
		if t == token {
			return i
		}
	}
	return -1
}

// InitializePool seeds reserves from provider and mints sqrt(a*b) shares to it.
func (v *MemoryVault) InitializePool(_ context.Context, poolID PoolID, provider common.Address, amounts [2]*big.Int) error {
	pool, err := v.pool(poolID)
	if err != nil {
		return err
	}
	if v.state.TotalSupply(pool.address).Sign() != 0 {
		return fmt.Errorf("pool %s already initialized", poolID.Hex())
	}
	for i, token := range pool.tokens {
		if err := v.state.Transfer(token, provider, pool.address, amounts[i]); err != nil {
			return err
		}
	}
	shares := new(big.Int).Sqrt(new(big.Int).Mul(amounts[0], amounts[1]))
	return v.state.Mint(pool.address, provider, shares)
}

func (v *MemoryVault) GetPoolTokens(_ context.Context, poolID PoolID) ([]common.Address, []*big.Int, error) {
	pool, err := v.pool(poolID)
	if err != nil {
		return nil, nil, err
	}
	tokens := []common.Address{pool.tokens[0], pool.tokens[1]}
	balances := []*big.Int{
		v.state.BalanceOf(pool.tokens[0], pool.address),
		v.state.BalanceOf(pool.tokens[1], pool.address),
	}
	return tokens, balances, nil
}

type swapLeg struct {
	pool      *memoryPool
	assetIn   int
	assetOut  int
	amountIn  *big.Int
	amountOut *big.Int
}

func (v *MemoryVault) QueryBatchSwap(_ context.Context, kind SwapKind, swaps []BatchSwapStep, assets []common.Address, _ FundManagement) ([]*big.Int, error) {
	_, deltas, err := v.price(kind, swaps, assets)
	return deltas, err
}

func (v *MemoryVault) BatchSwap(_ context.Context, call chain.Call, kind SwapKind, swaps []BatchSwapStep, assets []common.Address, funds FundManagement, limits []*big.Int, deadline *big.Int) ([]*big.Int, error) {
	if deadline != nil && deadline.Cmp(big.NewInt(v.now().Unix())) < 0 {
		return nil, ErrVaultDeadline
	}
	if len(limits) != len(assets) {
		return nil, fmt.Errorf("limits length %d != assets length %d", len(limits), len(assets))
	}
	legs, deltas, err := v.price(kind, swaps, assets)
	if err != nil {
		return nil, err
	}
	for i, d := range deltas {
		if d.Cmp(limits[i]) > 0 {
			return nil, fmt.Errorf("%w: asset %d delta %s limit %s", ErrVaultSwapLimit, i, d, limits[i])
		}
	}

	snap := v.state.Snapshot()
	if err := v.settle(call, assets, funds, legs, deltas); err != nil {
		_ = v.state.RevertToSnapshot(snap)
		return nil, err
	}
	_ = v.state.DiscardSnapshot(snap)
	return deltas, nil
}

func (v *MemoryVault) JoinPool(_ context.Context, _ chain.Call, poolID PoolID, sender, recipient common.Address, req JoinPoolRequest) error {
	pool, err := v.pool(poolID)
	if err != nil {
		return err
	}
	if len(req.Assets) != 2 || len(req.MaxAmountsIn) != 2 {
		return fmt.Errorf("join expects 2 assets, got %d", len(req.Assets))
	}
	for i, asset := range req.Assets {
		if v.poolToken(asset) != pool.tokens[i] {
			return fmt.Errorf("join asset %d is %s, pool holds %s", i, asset.Hex(), pool.tokens[i].Hex())
		}
	}
	amountsIn, minOut, err := DecodeExactTokensInJoin(req.UserData)
	if err != nil {
		return err
	}
	if len(amountsIn) != 2 {
		return fmt.Errorf("join amounts length %d", len(amountsIn))
	}
	for i := range amountsIn {
		if amountsIn[i].Cmp(req.MaxAmountsIn[i]) > 0 {
			return fmt.Errorf("%w: join amount %d above max", ErrVaultSwapLimit, i)
		}
	}

	supply := v.state.TotalSupply(pool.address)
	if supply.Sign() == 0 {
		return ErrPoolNotInitialized
	}
	balances := [2]*big.Int{
		v.state.BalanceOf(pool.tokens[0], pool.address),
		v.state.BalanceOf(pool.tokens[1], pool.address),
	}
	shares := sharesForExactTokensIn(balances, [2]*big.Int{amountsIn[0], amountsIn[1]}, supply, pool.feeBps)
	if minOut != nil && shares.Cmp(minOut) < 0 {
		return fmt.Errorf("BAL#208 BPT_OUT_MIN_AMOUNT: %s < %s", shares, minOut)
	}

	snap := v.state.Snapshot()
	for i, token := range pool.tokens {
		if amountsIn[i].Sign() == 0 {
			continue
		}
		if err := v.state.TransferFrom(token, v.address, sender, pool.address, amountsIn[i]); err != nil {
			_ = v.state.RevertToSnapshot(snap)
			return err
		}
	}
	if err := v.state.Mint(pool.address, recipient, shares); err != nil {
		_ = v.state.RevertToSnapshot(snap)
		return err
	}
	_ = v.state.DiscardSnapshot(snap)
	return nil
}

func (v *MemoryVault) pool(id PoolID) (*memoryPool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pool, ok := v.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotRegistered, id.Hex())
	}
	return pool, nil
}

// poolToken maps the native sentinel to the wrapped token the pool holds.
func (v *MemoryVault) poolToken(asset common.Address) common.Address {
	if asset == chain.NativeAsset {
		return v.weth
	}
	return asset
}

type balanceKey struct {
	pool  common.Address
	token common.Address
}

// price computes every step against live balances adjusted by earlier steps.
func (v *MemoryVault) price(kind SwapKind, swaps []BatchSwapStep, assets []common.Address) ([]swapLeg, []*big.Int, error) {
	deltas := make([]*big.Int, len(assets))
	for i := range deltas {
		deltas[i] = new(big.Int)
	}
	overlay := make(map[balanceKey]*big.Int)
	balance := func(pool *memoryPool, token common.Address) *big.Int {
		b := v.state.BalanceOf(token, pool.address)
		if d, ok := overlay[balanceKey{pool.address, token}]; ok {
			b.Add(b, d)
		}
		return b
	}
	bump := func(pool *memoryPool, token common.Address, d *big.Int) {
		key := balanceKey{pool.address, token}
		if _, ok := overlay[key]; !ok {
			overlay[key] = new(big.Int)
		}
		overlay[key].Add(overlay[key], d)
	}

	legs := make([]swapLeg, 0, len(swaps))
	for _, step := range swaps {
		pool, err := v.pool(step.PoolId)
		if err != nil {
			return nil, nil, err
		}
		in, out := int(step.AssetInIndex.Int64()), int(step.AssetOutIndex.Int64())
		if in < 0 || out < 0 || in >= len(assets) || out >= len(assets) || in == out {
			return nil, nil, fmt.Errorf("BAL#100 OUT_OF_BOUNDS: step %d -> %d", in, out)
		}
		if step.Amount == nil || step.Amount.Sign() <= 0 {
			return nil, nil, fmt.Errorf("BAL#510 UNKNOWN_AMOUNT_IN_FIRST_SWAP")
		}
		tokenIn, tokenOut := v.poolToken(assets[in]), v.poolToken(assets[out])
		if !pool.holds(tokenIn) || !pool.holds(tokenOut) {
			return nil, nil, fmt.Errorf("BAL#521 TOKEN_NOT_REGISTERED: %s/%s", tokenIn.Hex(), tokenOut.Hex())
		}
		balIn, balOut := balance(pool, tokenIn), balance(pool, tokenOut)

		var amountIn, amountOut *big.Int
		if kind == GivenIn {
			amountIn = new(big.Int).Set(step.Amount)
			amountOut = outGivenIn(balIn, balOut, amountIn, pool.feeBps)
		} else {
			amountOut = new(big.Int).Set(step.Amount)
			amountIn, err = inGivenOut(balIn, balOut, amountOut, pool.feeBps)
			if err != nil {
				return nil, nil, err
			}
		}
		bump(pool, tokenIn, amountIn)
		bump(pool, tokenOut, new(big.Int).Neg(amountOut))
		deltas[in].Add(deltas[in], amountIn)
		deltas[out].Sub(deltas[out], amountOut)
		legs = append(legs, swapLeg{pool: pool, assetIn: in, assetOut: out, amountIn: amountIn, amountOut: amountOut})
	}
	return legs, deltas, nil
}

func (v *MemoryVault) settle(call chain.Call, assets []common.Address, funds FundManagement, legs []swapLeg, deltas []*big.Int) error {
	value := call.AttachedValue()
	nativeIn := new(big.Int)
	for i, asset := range assets {
		if asset == chain.NativeAsset && deltas[i].Sign() > 0 {
			nativeIn.Add(nativeIn, deltas[i])
		}
	}
	if value.Cmp(nativeIn) < 0 {
		return fmt.Errorf("BAL#526 INSUFFICIENT_ETH: sent %s, need %s", value, nativeIn)
	}
	if value.Sign() > 0 {
		if err := v.state.Transfer(chain.NativeAsset, call.From, v.address, value); err != nil {
			return err
		}
	}

	for _, leg := range legs {
		if err := v.receive(assets[leg.assetIn], funds.Sender, leg.pool.address, leg.amountIn); err != nil {
			return err
		}
		if err := v.send(assets[leg.assetOut], leg.pool.address, funds.Recipient, leg.amountOut); err != nil {
			return err
		}
	}

	// excess native goes back to the caller
	if excess := new(big.Int).Sub(value, nativeIn); excess.Sign() > 0 {
		return v.state.Transfer(chain.NativeAsset, v.address, call.From, excess)
	}
	return nil
}

func (v *MemoryVault) receive(asset, sender, pool common.Address, amount *big.Int) error {
	if asset != chain.NativeAsset {
		return v.state.TransferFrom(asset, v.address, sender, pool, amount)
	}
	if err := v.state.Transfer(chain.NativeAsset, v.address, v.weth, amount); err != nil {
		return err
	}
	return v.state.Mint(v.weth, pool, amount)
}

func (v *MemoryVault) send(asset, pool, recipient common.Address, amount *big.Int) error {
	if asset != chain.NativeAsset {
		return v.state.Transfer(asset, pool, recipient, amount)
	}
	if err := v.state.Burn(v.weth, pool, amount); err != nil {
		return err
	}
	return v.state.Transfer(chain.NativeAsset, v.weth, recipient, amount)
}

func (p *memoryPool) holds(token common.Address) bool {
	return p.tokens[0] == token || p.tokens[1] == token
}

// outGivenIn: out = balOut * inAfterFee / (balIn + inAfterFee), rounded down.
func outGivenIn(balIn, balOut, amountIn *big.Int, feeBps uint64) *big.Int {
	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(bpsDenominator-feeBps)))
	inAfterFee.Quo(inAfterFee, big.NewInt(bpsDenominator))
	num := new(big.Int).Mul(balOut, inAfterFee)
	den := new(big.Int).Add(balIn, inAfterFee)
	if den.Sign() == 0 {
		return new(big.Int)
	}
	return num.Quo(num, den)
}

// inGivenOut: in = ceil(balIn * out / (balOut - out)) grossed up for the fee.
func inGivenOut(balIn, balOut, amountOut *big.Int, feeBps uint64) (*big.Int, error) {
	if amountOut.Cmp(balOut) >= 0 {
		return nil, fmt.Errorf("%w: want %s, pool holds %s", ErrInsufficientLiquidity, amountOut, balOut)
	}
	raw := divUp(new(big.Int).Mul(balIn, amountOut), new(big.Int).Sub(balOut, amountOut))
	return divUp(new(big.Int).Mul(raw, big.NewInt(bpsDenominator)), big.NewInt(int64(bpsDenominator-feeBps))), nil
}

// sharesForExactTokensIn prices a 50/50 weighted join. The part of each
// amount above the proportional contribution is charged the swap fee.
func sharesForExactTokensIn(balances, amounts [2]*big.Int, supply *big.Int, feeBps uint64) *big.Int {
	// proportional ratio = (a0*b1 + a1*b0) / (2*b0*b1)
	num := new(big.Int).Add(new(big.Int).Mul(amounts[0], balances[1]), new(big.Int).Mul(amounts[1], balances[0]))
	den := new(big.Int).Mul(big.NewInt(2), new(big.Int).Mul(balances[0], balances[1]))

	var effective [2]*big.Int
	for i := range amounts {
		nonTaxable := new(big.Int).Mul(balances[i], num)
		nonTaxable.Quo(nonTaxable, den)
		effective[i] = new(big.Int).Set(amounts[i])
		if amounts[i].Cmp(nonTaxable) > 0 {
			taxable := new(big.Int).Sub(amounts[i], nonTaxable)
			taxable.Mul(taxable, big.NewInt(int64(bpsDenominator-feeBps)))
			taxable.Quo(taxable, big.NewInt(bpsDenominator))
			effective[i] = taxable.Add(taxable, nonTaxable)
		}
	}
	before := new(big.Int).Sqrt(new(big.Int).Mul(balances[0], balances[1]))
	after := new(big.Int).Sqrt(new(big.Int).Mul(
		new(big.Int).Add(balances[0], effective[0]),
		new(big.Int).Add(balances[1], effective[1]),
	))
	if before.Sign() == 0 {
		return new(big.Int)
	}
	shares := new(big.Int).Mul(supply, new(big.Int).Sub(after, before))
	return shares.Quo(shares, before)
}

func divUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
