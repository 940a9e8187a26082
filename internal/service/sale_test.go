package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/devnet"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/signer"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	engineAddr    = devnet.Address("engine")
	ownerAddr     = devnet.Address("owner")
	buyerAddr     = devnet.Address("buyer")
	otherBuyer    = devnet.Address("buyer.other")
	liquidityAddr = devnet.Address("liquidity")
	treasuryAddr  = devnet.Address("treasury")
	fixedNow      = time.Unix(1_700_000_000, 0)
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingSink) Publish(_ context.Context, events []model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recordingSink) all() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

type harness struct {
	t      *testing.T
	env    *devnet.Env
	svc    *SaleService
	key    *ecdsa.PrivateKey
	signer *signer.Signer
	sink   *recordingSink
}

func baseConfig(env *devnet.Env, signerAddr common.Address) SaleConfig {
	return SaleConfig{
		ChainID:            31337,
		Engine:             engineAddr,
		Owner:              ownerAddr,
		UtilityAsset:       devnet.UtilityToken,
		PoolID:             env.PoolID,
		LiquidityRecipient: liquidityAddr,
		RevenueRecipient:   treasuryAddr,
		BasePricePerItem:   big.NewInt(50),
		BurnRatioBps:       5_000,
		LiquidityRatioBps:  4_000,
		MaxBatchSize:       5,
		Signer:             signerAddr,
		ItemRegistry:       devnet.ItemRegistry,
	}
}

func newEnv(t *testing.T) *devnet.Env {
	t.Helper()
	env, err := devnet.New(context.Background(), devnet.Options{
		Engine:           engineAddr,
		ReserveUtility:   big.NewInt(1_000_000),
		ReserveReference: big.NewInt(1_000_000),
		SwapFeeBps:       30,
	})
	require.NoError(t, err)
	return env
}

func deps(env *devnet.Env, sink EventSink) Deps {
	return Deps{
		Ledger:     env.State,
		Vault:      env.Vault,
		Minter:     env.Minter,
		Registries: env.Directory,
		Contracts:  env.State,
		Events:     sink,
		Clock:      func() time.Time { return fixedNow },
	}
}

func newHarness(t *testing.T, mutate ...func(*SaleConfig)) *harness {
	t.Helper()
	env := newEnv(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := baseConfig(env, crypto.PubkeyToAddress(key.PublicKey))
	for _, m := range mutate {
		m(&cfg)
	}
	sink := &recordingSink{}
	svc, err := NewSaleService(context.Background(), cfg, deps(env, sink))
	require.NoError(t, err)

	return &harness{
		t:      t,
		env:    env,
		svc:    svc,
		key:    key,
		signer: signer.NewSignerFromKey(key, svc.Codec()),
		sink:   sink,
	}
}

func ids(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func (h *harness) expiry() *big.Int {
	return big.NewInt(fixedNow.Add(time.Hour).Unix())
}

// paid builds and signs a paid purchase for buyer.
func (h *harness) paid(buyer common.Address, orderID int64, items []*big.Int, asset common.Address, amount, minRevenue int64) PaidPurchase {
	h.t.Helper()
	p := PaidPurchase{
		OrderID:      big.NewInt(orderID),
		ItemIDs:      items,
		PaymentAsset: asset,
		Amount:       big.NewInt(amount),
		MinRevenue:   big.NewInt(minRevenue),
		ExpiresAt:    h.expiry(),
	}
	sig, err := h.signer.SignPaid(&signer.PaidOrder{
		OrderID:      p.OrderID,
		Buyer:        buyer,
		ItemIDs:      p.ItemIDs,
		PaymentAsset: p.PaymentAsset,
		Amount:       p.Amount,
		MinRevenue:   p.MinRevenue,
		ExpiresAt:    p.ExpiresAt,
	})
	require.NoError(h.t, err)
	p.Signature = sig
	return p
}

func (h *harness) free(buyer common.Address, orderID int64, items []*big.Int) FreePurchase {
	h.t.Helper()
	p := FreePurchase{OrderID: big.NewInt(orderID), ItemIDs: items, ExpiresAt: h.expiry()}
	sig, err := h.signer.SignFree(&signer.FreeOrder{OrderID: p.OrderID, Buyer: buyer, ItemIDs: items, ExpiresAt: p.ExpiresAt})
	require.NoError(h.t, err)
	p.Signature = sig
	return p
}

func (h *harness) fundUtility(holder common.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.env.FundUtility(holder, big.NewInt(amount)))
	h.env.State.Approve(devnet.UtilityToken, holder, engineAddr, big.NewInt(amount))
}

func TestNewSaleServiceValidatesConfig(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	cases := map[string]func(*SaleConfig){
		"ratios":       func(c *SaleConfig) { c.BurnRatioBps, c.LiquidityRatioBps = 6_000, 4_001 },
		"zero price":   func(c *SaleConfig) { c.BasePricePerItem = new(big.Int) },
		"nil price":    func(c *SaleConfig) { c.BasePricePerItem = nil },
		"zero revenue": func(c *SaleConfig) { c.RevenueRecipient = common.Address{} },
		"zero engine":  func(c *SaleConfig) { c.Engine = common.Address{} },
		"zero owner":   func(c *SaleConfig) { c.Owner = common.Address{} },
		"bad pool":     func(c *SaleConfig) { c.PoolID = venue.NewPoolID(devnet.Address("nopool"), 99) },
		"bad registry": func(c *SaleConfig) { c.ItemRegistry = devnet.Address("unknown") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig(env, devnet.Address("signer"))
			mutate(&cfg)
			_, err := NewSaleService(ctx, cfg, deps(env, nil))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewSaleServiceDefaults(t *testing.T) {
	h := newHarness(t, func(c *SaleConfig) { c.MaxBatchSize = 0 })
	view := h.svc.Config()
	assert.Equal(t, DefaultMaxBatchSize, view.MaxBatchSize)
	assert.Equal(t, uint64(1_000), view.RevenueRatioBps)
	assert.Equal(t, chain.NativeAsset, view.ReferenceAsset)
	assert.Equal(t, devnet.RedeemableToken, view.WrappedReferenceAsset)
	assert.Equal(t, h.env.Vault.Address(), view.Venue)
	assert.Equal(t, devnet.ItemRegistry, view.ItemRegistry)
	assert.Equal(t, h.signer.Address(), view.Signer)
	assert.Equal(t, h.svc.Codec().DomainSeparator(), view.DomainSeparator)
}

func TestQuoteIsAdvisory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	quoted, err := h.svc.Quote(ctx, 3)
	require.NoError(t, err)
	assert.True(t, quoted.Cmp(big.NewInt(150)) > 0)

	_, err = h.svc.Quote(chain.WithExecution(ctx), 3)
	assert.ErrorIs(t, err, venue.ErrQuoteInSettlement)

	_, err = h.svc.Quote(ctx, 0)
	assert.ErrorIs(t, err, ErrEmptyItems)
	_, err = h.svc.Quote(ctx, 6)
	var batch *BatchTooLargeError
	assert.ErrorAs(t, err, &batch)
}
