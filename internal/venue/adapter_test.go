package venue

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	utilityToken = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wethToken    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	vaultAddr    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	engineAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	lpAddr       = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	otherAddr    = common.HexToAddress("0x0000000000000000000000000000000000000101")
)

type fixture struct {
	state   *chain.State
	vault   *MemoryVault
	adapter *Adapter
	poolID  PoolID
}

func newFixture(t *testing.T, feeBps uint64) *fixture {
	t.Helper()
	ctx := context.Background()
	state := chain.NewState()
	vault := NewMemoryVault(state, vaultAddr, wethToken)
	poolID := vault.RegisterPool(poolAddr, utilityToken, wethToken, feeBps)

	reserve := big.NewInt(1_000_000)
	require.NoError(t, state.Mint(utilityToken, lpAddr, reserve))
	require.NoError(t, state.Mint(chain.NativeAsset, wethToken, reserve))
	require.NoError(t, state.Mint(wethToken, lpAddr, reserve))
	require.NoError(t, vault.InitializePool(ctx, poolID, lpAddr, [2]*big.Int{reserve, reserve}))

	adapter, err := NewAdapter(ctx, vault, state, AdapterConfig{PoolID: poolID, Utility: utilityToken, Sender: engineAddr})
	require.NoError(t, err)
	return &fixture{state: state, vault: vault, adapter: adapter, poolID: poolID}
}

func TestNewAdapterResolvesOrdering(t *testing.T) {
	f := newFixture(t, 30)
	tokens, _, err := f.vault.GetPoolTokens(context.Background(), f.poolID)
	require.NoError(t, err)
	assert.Equal(t, utilityToken, tokens[f.adapter.UtilityIndex()])
	assert.Equal(t, wethToken, f.adapter.ReferenceToken())
}

type shapeVault struct {
	Vault
	tokens []common.Address
}

func (s shapeVault) GetPoolTokens(context.Context, PoolID) ([]common.Address, []*big.Int, error) {
	return s.tokens, nil, nil
}

func TestNewAdapterRejectsInvalidPool(t *testing.T) {
	ctx := context.Background()
	cfg := AdapterConfig{Utility: utilityToken, Sender: engineAddr}

	_, err := NewAdapter(ctx, shapeVault{tokens: []common.Address{utilityToken, wethToken, otherAddr}}, chain.NewState(), cfg)
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewAdapter(ctx, shapeVault{tokens: []common.Address{otherAddr, wethToken}}, chain.NewState(), cfg)
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewAdapter(ctx, shapeVault{tokens: []common.Address{utilityToken}}, chain.NewState(), cfg)
	assert.ErrorIs(t, err, ErrInvalidPool)
}

func TestSwapExactOutNative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	require.NoError(t, f.state.Mint(chain.NativeAsset, engineAddr, big.NewInt(1_000)))

	want, err := inGivenOut(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(150), 30)
	require.NoError(t, err)

	spent, err := f.adapter.SwapExactOut(ctx, chain.NativeAsset, utilityToken, big.NewInt(1_000), big.NewInt(150), engineAddr)
	require.NoError(t, err)
	assert.Equal(t, want, spent)
	assert.Equal(t, int64(150), f.state.BalanceOf(utilityToken, engineAddr).Int64())
	assert.Equal(t, 1_000-want.Int64(), f.state.BalanceOf(chain.NativeAsset, engineAddr).Int64())
	assert.Equal(t, int64(0), f.state.BalanceOf(chain.NativeAsset, vaultAddr).Int64())
}

func TestSwapExactOutLimitExceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	require.NoError(t, f.state.Mint(chain.NativeAsset, engineAddr, big.NewInt(1_000)))

	_, err := f.adapter.SwapExactOut(ctx, chain.NativeAsset, utilityToken, big.NewInt(100), big.NewInt(150), engineAddr)
	assert.ErrorIs(t, err, ErrSwapLimitExceeded)
	assert.Equal(t, int64(1_000), f.state.BalanceOf(chain.NativeAsset, engineAddr).Int64())
	assert.Equal(t, int64(0), f.state.BalanceOf(utilityToken, engineAddr).Int64())
}

func TestSwapExactInToRecipient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	require.NoError(t, f.state.Mint(utilityToken, engineAddr, big.NewInt(1_000)))

	out, err := f.adapter.SwapExactIn(ctx, utilityToken, chain.NativeAsset, big.NewInt(1_000), big.NewInt(1), otherAddr)
	require.NoError(t, err)
	assert.Equal(t, outGivenIn(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(1_000), 0), out)
	assert.Equal(t, out, f.state.BalanceOf(chain.NativeAsset, otherAddr))
	assert.Equal(t, int64(0), f.state.Allowance(utilityToken, engineAddr, vaultAddr).Int64())
}

func TestSwapExactInBelowMinimum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	require.NoError(t, f.state.Mint(utilityToken, engineAddr, big.NewInt(1_000)))

	_, err := f.adapter.SwapExactIn(ctx, utilityToken, chain.NativeAsset, big.NewInt(1_000), big.NewInt(5_000), otherAddr)
	var short *InsufficientOutputError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(5_000), short.Min.Int64())
	assert.True(t, short.Actual.Cmp(short.Min) < 0)
}

func TestSwapRejectsForeignAsset(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.adapter.SwapExactIn(context.Background(), otherAddr, utilityToken, big.NewInt(1), nil, engineAddr)
	assert.ErrorIs(t, err, ErrAssetNotInPool)
}

type lyingVault struct {
	*MemoryVault
}

func (v lyingVault) BatchSwap(ctx context.Context, call chain.Call, kind SwapKind, swaps []BatchSwapStep, assets []common.Address, funds FundManagement, limits []*big.Int, deadline *big.Int) ([]*big.Int, error) {
	deltas, err := v.MemoryVault.BatchSwap(ctx, call, kind, swaps, assets, funds, limits, deadline)
	if err != nil {
		return nil, err
	}
	// report the trade in the wrong direction
	return []*big.Int{new(big.Int).Neg(deltas[0]), new(big.Int).Neg(deltas[1])}, nil
}

func TestSwapInvariantViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	require.NoError(t, f.state.Mint(chain.NativeAsset, engineAddr, big.NewInt(1_000)))

	adapter, err := NewAdapter(ctx, lyingVault{f.vault}, f.state, AdapterConfig{PoolID: f.poolID, Utility: utilityToken, Sender: engineAddr})
	require.NoError(t, err)

	_, err = adapter.SwapExactOut(ctx, chain.NativeAsset, utilityToken, big.NewInt(1_000), big.NewInt(150), engineAddr)
	var violation *SwapInvariantViolationError
	assert.True(t, errors.As(err, &violation))
}

func TestQuoteIsAdvisoryOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	quoted, err := f.adapter.Quote(ctx, big.NewInt(150))
	require.NoError(t, err)
	want, _ := inGivenOut(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(150), 30)
	assert.Equal(t, want, quoted)

	// no state moved
	_, balances, _ := f.vault.GetPoolTokens(ctx, f.poolID)
	assert.Equal(t, int64(1_000_000), balances[0].Int64())
	assert.Equal(t, int64(1_000_000), balances[1].Int64())

	_, err = f.adapter.Quote(chain.WithExecution(ctx), big.NewInt(150))
	assert.ErrorIs(t, err, ErrQuoteInSettlement)
}

func TestJoinSingleSided(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	require.NoError(t, f.state.Mint(utilityToken, engineAddr, big.NewInt(60_000)))

	receipt, err := f.adapter.JoinSingleSided(ctx, big.NewInt(60_000), otherAddr)
	require.NoError(t, err)
	assert.True(t, receipt.Sign() > 0)
	assert.Equal(t, receipt, f.state.BalanceOf(poolAddr, otherAddr))
	assert.Equal(t, int64(0), f.state.BalanceOf(utilityToken, engineAddr).Int64())
	// single-sided join is worth less than a proportional one
	assert.True(t, receipt.Cmp(big.NewInt(30_000)) < 0)
}

func TestJoinUserDataRoundTrip(t *testing.T) {
	data, err := EncodeExactTokensInJoin([]*big.Int{big.NewInt(5), big.NewInt(0)}, big.NewInt(1))
	require.NoError(t, err)
	amounts, minOut, err := DecodeExactTokensInJoin(data)
	require.NoError(t, err)
	assert.Equal(t, int64(5), amounts[0].Int64())
	assert.Equal(t, int64(1), minOut.Int64())
}
