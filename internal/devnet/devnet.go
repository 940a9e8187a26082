// Package devnet assembles an in-process chain environment: a journaled
// ledger, a Balancer-style vault with one utility/WETH pool, the redeemable
// reference token and a soulbound item registry.
package devnet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/config"
	"github.com/GoPolymarket/itemsale/internal/registry"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address derives a stable devnet address for label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("itemsale.devnet." + label))[12:])
}

var (
	UtilityToken      = Address("utility")
	WrappedNative     = Address("weth")
	RedeemableToken   = Address("redeemable")
	RedeemableMinter  = Address("redeemable.minter")
	PoolAddress       = Address("pool")
	ItemRegistry      = Address("registry")
	LiquidityProvider = Address("lp")
)

type Options struct {
	Engine           common.Address
	Vault            common.Address
	ReserveUtility   *big.Int
	ReserveReference *big.Int
	SwapFeeBps       uint64
}

type Env struct {
	State     *chain.State
	Vault     *venue.MemoryVault
	PoolID    venue.PoolID
	Minter    *chain.RedeemableToken
	Registry  *registry.Memory
	Directory *registry.Directory
	Engine    common.Address
}

func New(ctx context.Context, opts Options) (*Env, error) {
	if opts.Engine == (common.Address{}) {
		return nil, fmt.Errorf("devnet: engine address required")
	}
	if opts.Vault == (common.Address{}) {
		opts.Vault = Address("vault")
	}
	if opts.ReserveUtility == nil || opts.ReserveReference == nil ||
		opts.ReserveUtility.Sign() <= 0 || opts.ReserveReference.Sign() <= 0 {
		return nil, fmt.Errorf("devnet: pool reserves must be positive")
	}

	state := chain.NewState()
	vault := venue.NewMemoryVault(state, opts.Vault, WrappedNative)
	poolID := vault.RegisterPool(PoolAddress, UtilityToken, WrappedNative, opts.SwapFeeBps)

	if err := state.Mint(UtilityToken, LiquidityProvider, opts.ReserveUtility); err != nil {
		return nil, err
	}
	// WETH is backed one-for-one by native value held at its own address.
	if err := state.Mint(chain.NativeAsset, WrappedNative, opts.ReserveReference); err != nil {
		return nil, err
	}
	if err := state.Mint(WrappedNative, LiquidityProvider, opts.ReserveReference); err != nil {
		return nil, err
	}
	reserves := [2]*big.Int{opts.ReserveUtility, opts.ReserveReference}
	if vault.PoolTokenIndex(poolID, UtilityToken) != 0 {
		reserves[0], reserves[1] = reserves[1], reserves[0]
	}
	if err := vault.InitializePool(ctx, poolID, LiquidityProvider, reserves); err != nil {
		return nil, fmt.Errorf("devnet: seed pool: %w", err)
	}

	reg := registry.NewMemory(ItemRegistry, state)
	reg.Grant(opts.Engine, registry.CapMinter)

	return &Env{
		State:     state,
		Vault:     vault,
		PoolID:    poolID,
		Minter:    chain.NewRedeemableToken(state, RedeemableToken, RedeemableMinter),
		Registry:  reg,
		Directory: registry.NewDirectory(reg),
		Engine:    opts.Engine,
	}, nil
}

// FromConfig builds the environment described by the devnet and chain sections.
func FromConfig(ctx context.Context, cfg *config.Config) (*Env, error) {
	reserveUtility, err := ParseAmount(cfg.Devnet.PoolReserveUtility)
	if err != nil {
		return nil, fmt.Errorf("devnet.pool_reserve_utility: %w", err)
	}
	reserveReference, err := ParseAmount(cfg.Devnet.PoolReserveReference)
	if err != nil {
		return nil, fmt.Errorf("devnet.pool_reserve_reference: %w", err)
	}
	env, err := New(ctx, Options{
		Engine:           common.HexToAddress(cfg.Chain.EngineAddress),
		Vault:            common.HexToAddress(cfg.Chain.VaultAddress),
		ReserveUtility:   reserveUtility,
		ReserveReference: reserveReference,
		SwapFeeBps:       cfg.Devnet.SwapFeeBps,
	})
	if err != nil {
		return nil, err
	}
	for addr, amount := range cfg.Devnet.Balances {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("devnet.balances: invalid address %q", addr)
		}
		v, err := ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("devnet.balances[%s]: %w", addr, err)
		}
		if err := env.FundNative(common.HexToAddress(addr), v); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func (e *Env) FundNative(holder common.Address, amount *big.Int) error {
	return e.State.Mint(chain.NativeAsset, holder, amount)
}

func (e *Env) FundUtility(holder common.Address, amount *big.Int) error {
	return e.State.Mint(UtilityToken, holder, amount)
}

// FundRedeemable mints native value to holder and wraps it into the redeemable token.
func (e *Env) FundRedeemable(ctx context.Context, holder common.Address, amount *big.Int) error {
	if err := e.FundNative(holder, amount); err != nil {
		return err
	}
	return e.Minter.Mint(ctx, chain.Call{From: holder, Value: new(big.Int).Set(amount)}, holder)
}

func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
