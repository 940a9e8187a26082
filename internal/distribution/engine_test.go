package distribution

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	utility   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	weth      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	vaultAt   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	pool      = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	engine    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	lp        = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	treasury  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	liquidity = common.HexToAddress("0x0000000000000000000000000000000000000a12")
)

func TestSplitThreeItems(t *testing.T) {
	// 3 items at 50 with 50% burn and 40% liquidity.
	shares, err := Split(big.NewInt(150), 5_000, 4_000)
	require.NoError(t, err)
	assert.Equal(t, int64(75), shares.Burn.Int64())
	assert.Equal(t, int64(60), shares.Liquidity.Int64())
	assert.Equal(t, int64(15), shares.Revenue.Int64())
}

func TestSplitAlwaysSumsToRequired(t *testing.T) {
	ratios := [][2]uint64{{0, 0}, {10_000, 0}, {0, 10_000}, {3_333, 3_333}, {1, 9_999}, {7_001, 1_999}}
	amounts := []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(7), big.NewInt(999_999_937), new(big.Int).Set(math.MaxBig256)}
	for _, r := range ratios {
		for _, amount := range amounts {
			shares, err := Split(amount, r[0], r[1])
			require.NoError(t, err)
			sum := new(big.Int).Add(shares.Burn, shares.Liquidity)
			sum.Add(sum, shares.Revenue)
			assert.Equal(t, 0, sum.Cmp(amount), "ratios %v amount %s", r, amount)
			assert.True(t, shares.Revenue.Sign() >= 0)
		}
	}
}

func TestSplitRejectsBadInput(t *testing.T) {
	_, err := Split(big.NewInt(100), 6_000, 5_000)
	assert.ErrorIs(t, err, ErrInvalidRatios)

	tooBig := new(big.Int).Add(math.MaxBig256, big.NewInt(1))
	_, err = Split(tooBig, 1, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = NewEngine(Config{BurnRatioBps: 10_000, LiquidityRatioBps: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRatios)
}

func newEngine(t *testing.T, burnBps, liqBps uint64) (*chain.State, *Engine) {
	t.Helper()
	ctx := context.Background()
	state := chain.NewState()
	vault := venue.NewMemoryVault(state, vaultAt, weth)
	id := vault.RegisterPool(pool, utility, weth, 0)

	reserve := big.NewInt(1_000_000)
	require.NoError(t, state.Mint(utility, lp, reserve))
	require.NoError(t, state.Mint(chain.NativeAsset, weth, reserve))
	require.NoError(t, state.Mint(weth, lp, reserve))
	require.NoError(t, vault.InitializePool(ctx, id, lp, [2]*big.Int{reserve, reserve}))

	adapter, err := venue.NewAdapter(ctx, vault, state, venue.AdapterConfig{PoolID: id, Utility: utility, Sender: engine})
	require.NoError(t, err)

	eng, err := NewEngine(Config{
		Engine:             engine,
		Utility:            utility,
		BurnRatioBps:       burnBps,
		LiquidityRatioBps:  liqBps,
		LiquidityRecipient: liquidity,
		RevenueRecipient:   treasury,
	}, state, adapter)
	require.NoError(t, err)
	return state, eng
}

func TestDistributeAllLegs(t *testing.T) {
	state, eng := newEngine(t, 5_000, 4_000)
	require.NoError(t, state.Mint(utility, engine, big.NewInt(150)))
	supplyBefore := state.TotalSupply(utility)

	res, err := eng.Distribute(context.Background(), big.NewInt(150), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(75), res.Burn.Int64())
	assert.Equal(t, int64(60), res.Liquidity.Int64())
	assert.Equal(t, int64(15), res.Revenue.Int64())
	assert.True(t, res.RevenueReferenceOut.Sign() > 0)

	assert.Equal(t, int64(0), state.BalanceOf(utility, engine).Int64())
	assert.Equal(t, new(big.Int).Sub(supplyBefore, big.NewInt(75)), state.TotalSupply(utility))
	assert.True(t, state.BalanceOf(pool, liquidity).Sign() > 0)
	assert.Equal(t, res.RevenueReferenceOut, state.BalanceOf(chain.NativeAsset, treasury))
}

func TestDistributeRevenueBelowMinimum(t *testing.T) {
	state, eng := newEngine(t, 5_000, 4_000)
	require.NoError(t, state.Mint(utility, engine, big.NewInt(150)))

	_, err := eng.Distribute(context.Background(), big.NewInt(150), big.NewInt(1_000))
	var short *InsufficientRevenueError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(1_000), short.MinRequired.Int64())
	assert.True(t, short.Actual.Cmp(big.NewInt(15)) <= 0)
}

func TestDistributeZeroRevenueSkipsSwap(t *testing.T) {
	state, eng := newEngine(t, 6_000, 4_000)
	require.NoError(t, state.Mint(utility, engine, big.NewInt(100)))

	// minRevenue is irrelevant when nothing is sold
	res, err := eng.Distribute(context.Background(), big.NewInt(100), big.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Revenue.Int64())
	assert.Equal(t, int64(0), res.RevenueReferenceOut.Int64())
	assert.Equal(t, int64(0), state.BalanceOf(chain.NativeAsset, treasury).Int64())
}

func TestDistributeZeroLiquiditySkipsJoin(t *testing.T) {
	state, eng := newEngine(t, 10_000, 0)
	require.NoError(t, state.Mint(utility, engine, big.NewInt(100)))

	res, err := eng.Distribute(context.Background(), big.NewInt(100), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Burn.Int64())
	assert.Equal(t, int64(0), state.BalanceOf(pool, liquidity).Int64())
}

type zeroReceipt struct{ Venue }

func (zeroReceipt) JoinSingleSided(context.Context, *big.Int, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func TestDistributeZeroReceipt(t *testing.T) {
	state := chain.NewState()
	require.NoError(t, state.Mint(utility, engine, big.NewInt(100)))
	eng, err := NewEngine(Config{Engine: engine, Utility: utility, LiquidityRatioBps: 10_000}, state, zeroReceipt{})
	require.NoError(t, err)

	_, err = eng.Distribute(context.Background(), big.NewInt(100), nil)
	assert.ErrorIs(t, err, ErrInsufficientLiquidityReceived)
}
