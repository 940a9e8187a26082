package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrZeroMint = errors.New("chain: mint requires attached value")

// RedeemableToken is a fungible token fully backed by native value held at the
// minter address. Mint takes native value and issues tokens one-for-one;
// Redeem burns tokens and releases the backing.
type RedeemableToken struct {
	state  *State
	token  common.Address
	minter common.Address
}

func NewRedeemableToken(state *State, token, minter common.Address) *RedeemableToken {
	return &RedeemableToken{state: state, token: token, minter: minter}
}

func (r *RedeemableToken) Token() common.Address   { return r.token }
func (r *RedeemableToken) Address() common.Address { return r.minter }

// Mint issues call.Value tokens to `to`, paid by call.From.
func (r *RedeemableToken) Mint(_ context.Context, call Call, to common.Address) error {
	value := call.AttachedValue()
	if value.Sign() == 0 {
		return ErrZeroMint
	}
	if err := r.state.Transfer(NativeAsset, call.From, r.minter, value); err != nil {
		return err
	}
	return r.state.Mint(r.token, to, value)
}

// Redeem burns amount tokens held by holder and credits the same native value.
func (r *RedeemableToken) Redeem(_ context.Context, holder common.Address, amount *big.Int) error {
	if err := r.state.Burn(r.token, holder, amount); err != nil {
		return err
	}
	return r.state.Transfer(NativeAsset, r.minter, holder, amount)
}
