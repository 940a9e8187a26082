package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000001001")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000001002")
)

func TestStateTransferAndSupply(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Mint(tokenA, alice, big.NewInt(100)))
	require.NoError(t, s.Transfer(tokenA, alice, bob, big.NewInt(40)))

	assert.Equal(t, int64(60), s.BalanceOf(tokenA, alice).Int64())
	assert.Equal(t, int64(40), s.BalanceOf(tokenA, bob).Int64())
	assert.Equal(t, int64(100), s.TotalSupply(tokenA).Int64())

	err := s.Transfer(tokenA, bob, alice, big.NewInt(41))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestStateRevertToSnapshot(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Mint(tokenA, alice, big.NewInt(100)))

	snap := s.Snapshot()
	require.NoError(t, s.Transfer(tokenA, alice, bob, big.NewInt(30)))
	require.NoError(t, s.Burn(tokenA, alice, big.NewInt(10)))
	s.Approve(tokenA, alice, bob, big.NewInt(5))

	extra := 0
	s.Journal(func() { extra-- })
	extra++

	require.NoError(t, s.RevertToSnapshot(snap))
	assert.Equal(t, int64(100), s.BalanceOf(tokenA, alice).Int64())
	assert.Equal(t, int64(0), s.BalanceOf(tokenA, bob).Int64())
	assert.Equal(t, int64(100), s.TotalSupply(tokenA).Int64())
	assert.Equal(t, int64(0), s.Allowance(tokenA, alice, bob).Int64())
	assert.Equal(t, 0, extra)

	assert.ErrorIs(t, s.RevertToSnapshot(snap), ErrUnknownSnapshot)
}

func TestStateNestedSnapshots(t *testing.T) {
	s := NewState()
	outer := s.Snapshot()
	require.NoError(t, s.Mint(tokenA, alice, big.NewInt(5)))
	inner := s.Snapshot()
	require.NoError(t, s.Mint(tokenA, alice, big.NewInt(7)))

	require.NoError(t, s.RevertToSnapshot(inner))
	assert.Equal(t, int64(5), s.BalanceOf(tokenA, alice).Int64())

	require.NoError(t, s.DiscardSnapshot(outer))
	assert.Equal(t, int64(5), s.BalanceOf(tokenA, alice).Int64())
}

func TestStateTransferFromAllowance(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Mint(tokenA, alice, big.NewInt(10)))

	err := s.TransferFrom(tokenA, bob, alice, bob, big.NewInt(5))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	s.Approve(tokenA, alice, bob, big.NewInt(6))
	require.NoError(t, s.TransferFrom(tokenA, bob, alice, bob, big.NewInt(5)))
	assert.Equal(t, int64(1), s.Allowance(tokenA, alice, bob).Int64())
	assert.Equal(t, int64(5), s.BalanceOf(tokenA, bob).Int64())
}

func TestStateTransferFee(t *testing.T) {
	s := NewState()
	s.SetTransferFee(tokenA, 100) // 1%
	require.NoError(t, s.Mint(tokenA, alice, big.NewInt(1000)))
	require.NoError(t, s.Transfer(tokenA, alice, bob, big.NewInt(500)))

	assert.Equal(t, int64(495), s.BalanceOf(tokenA, bob).Int64())
	assert.Equal(t, int64(995), s.TotalSupply(tokenA).Int64())
}

type fixedWallet struct{ ok bool }

func (w fixedWallet) IsValidSignature(common.Hash, []byte) [4]byte {
	if w.ok {
		return EIP1271MagicValue
	}
	return [4]byte{}
}

func TestStateContractWallets(t *testing.T) {
	ctx := context.Background()
	s := NewState()
	s.SetCode(alice, fixedWallet{ok: true})

	has, err := s.HasCode(ctx, alice)
	require.NoError(t, err)
	assert.True(t, has)
	has, _ = s.HasCode(ctx, bob)
	assert.False(t, has)

	valid, err := s.IsValidSignature(ctx, alice, common.Hash{}, nil)
	require.NoError(t, err)
	assert.True(t, valid)
	valid, _ = s.IsValidSignature(ctx, bob, common.Hash{}, nil)
	assert.False(t, valid)
}

func TestRedeemableTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewState()
	token := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	minter := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	r := NewRedeemableToken(s, token, minter)

	require.NoError(t, s.Mint(NativeAsset, alice, big.NewInt(100)))
	require.NoError(t, r.Mint(ctx, Call{From: alice, Value: big.NewInt(60)}, bob))
	assert.Equal(t, int64(60), s.BalanceOf(token, bob).Int64())
	assert.Equal(t, int64(60), s.BalanceOf(NativeAsset, minter).Int64())

	require.NoError(t, r.Redeem(ctx, bob, big.NewInt(20)))
	assert.Equal(t, int64(40), s.BalanceOf(token, bob).Int64())
	assert.Equal(t, int64(20), s.BalanceOf(NativeAsset, bob).Int64())

	assert.ErrorIs(t, r.Mint(ctx, Call{From: alice}, bob), ErrZeroMint)
}

func TestExecutionMarker(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Executing(ctx))
	assert.True(t, Executing(WithExecution(ctx)))
}
