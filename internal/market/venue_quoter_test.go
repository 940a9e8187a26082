package market

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatPricing int64

func (p flatPricing) RequiredUtility(items int) *big.Int {
	return big.NewInt(int64(p) * int64(items))
}

func TestVenueQuoterFeedsBoard(t *testing.T) {
	ctx := context.Background()
	utility := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	weth := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lp := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	state := chain.NewState()
	vault := venue.NewMemoryVault(state, common.HexToAddress("0xc1"), weth)
	poolID := vault.RegisterPool(common.HexToAddress("0xd1"), utility, weth, 0)
	reserve := big.NewInt(1_000_000)
	require.NoError(t, state.Mint(utility, lp, reserve))
	require.NoError(t, state.Mint(chain.NativeAsset, weth, reserve))
	require.NoError(t, state.Mint(weth, lp, reserve))
	require.NoError(t, vault.InitializePool(ctx, poolID, lp, [2]*big.Int{reserve, reserve}))

	adapter, err := venue.NewAdapter(ctx, vault, state, venue.AdapterConfig{
		PoolID:  poolID,
		Utility: utility,
		Sender:  common.HexToAddress("0xe1"),
	})
	require.NoError(t, err)

	quoter := NewVenueQuoter(adapter, flatPricing(50))
	_, err = quoter.Quote(ctx, 0)
	assert.ErrorIs(t, err, ErrNoItems)

	board := NewPriceBoard(quoter, BoardConfig{ItemCounts: []int{2}, Refresh: time.Second})
	require.NoError(t, board.Refresh(ctx))
	q, stale, err := board.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, "100", q.RequiredUtility.String())
	direct, err := adapter.Quote(ctx, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, direct, q.ReferenceIn)
}
