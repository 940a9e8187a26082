package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/distribution"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/ownership"
	"github.com/GoPolymarket/itemsale/internal/payment"
	"github.com/GoPolymarket/itemsale/internal/registry"
	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/GoPolymarket/itemsale/internal/signer"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
)

const DefaultMaxBatchSize = 20

// SaleConfig is fixed for the lifetime of a SaleService.
type SaleConfig struct {
	ChainID            int64
	Engine             common.Address
	Owner              common.Address
	UtilityAsset       common.Address
	PoolID             venue.PoolID
	LiquidityRecipient common.Address
	RevenueRecipient   common.Address
	BasePricePerItem   *big.Int
	BurnRatioBps       uint64
	LiquidityRatioBps  uint64
	MaxBatchSize       int

	// Owner-mutable; may be zero at construction.
	Signer       common.Address
	ItemRegistry common.Address
}

// Ledger is the token state the engine settles against. Snapshots bound a
// unit of work.
type Ledger interface {
	BalanceOf(asset, holder common.Address) *big.Int
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
	Approve(asset, owner, spender common.Address, amount *big.Int)
	Burn(asset, from common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int) error
}

type RegistryResolver interface {
	Lookup(addr common.Address) (registry.ItemRegistry, error)
}

// EventSink receives events after their unit of work committed.
type EventSink interface {
	Publish(ctx context.Context, events []model.Event)
}

type Deps struct {
	Ledger     Ledger
	Vault      venue.Vault
	Minter     payment.ReferenceMinter
	Registries RegistryResolver
	Replay     replay.Ledger
	Contracts  signer.ContractChecker
	Events     EventSink
	Clock      func() time.Time
}

// ConfigView is the read-only configuration exposed to callers.
type ConfigView struct {
	ChainID               int64          `json:"chain_id"`
	Engine                common.Address `json:"engine"`
	Owner                 common.Address `json:"owner"`
	PendingOwner          common.Address `json:"pending_owner"`
	UtilityAsset          common.Address `json:"utility_asset"`
	ReferenceAsset        common.Address `json:"reference_asset"`
	WrappedReferenceAsset common.Address `json:"wrapped_reference_asset"`
	Venue                 common.Address `json:"venue"`
	PoolID                string         `json:"pool_id"`
	LiquidityRecipient    common.Address `json:"liquidity_recipient"`
	RevenueRecipient      common.Address `json:"revenue_recipient"`
	BasePricePerItem      *big.Int       `json:"base_price_per_item"`
	BurnRatioBps          uint64         `json:"burn_ratio_bps"`
	LiquidityRatioBps     uint64         `json:"liquidity_ratio_bps"`
	RevenueRatioBps       uint64         `json:"revenue_ratio_bps"`
	MaxBatchSize          int            `json:"max_batch_size"`
	Signer                common.Address `json:"signer"`
	ItemRegistry          common.Address `json:"item_registry"`
	DomainSeparator       common.Hash    `json:"domain_separator"`
}

// SaleService is the settlement orchestrator. Every mutating entry point runs
// serialized, as one unit of work that is either applied whole or not at all.
type SaleService struct {
	cfg        SaleConfig
	ledger     Ledger
	minter     payment.ReferenceMinter
	registries RegistryResolver
	replay     replay.Ledger
	events     EventSink
	now        func() time.Time

	codec       *signer.Codec
	verifier    *signer.Verifier
	adapter     *venue.Adapter
	normalizer  *payment.Normalizer
	distributor *distribution.Engine
	owner       *ownership.Ownable

	execMu sync.Mutex

	cfgMu    sync.RWMutex
	signer   common.Address
	registry registry.ItemRegistry
}

func NewSaleService(ctx context.Context, cfg SaleConfig, deps Deps) (*SaleService, error) {
	if err := validateConfig(&cfg, deps); err != nil {
		return nil, err
	}
	owner, err := ownership.New(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	adapter, err := venue.NewAdapter(ctx, deps.Vault, deps.Ledger, venue.AdapterConfig{
		PoolID:  cfg.PoolID,
		Utility: cfg.UtilityAsset,
		Sender:  cfg.Engine,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	distributor, err := distribution.NewEngine(distribution.Config{
		Engine:             cfg.Engine,
		Utility:            cfg.UtilityAsset,
		BurnRatioBps:       cfg.BurnRatioBps,
		LiquidityRatioBps:  cfg.LiquidityRatioBps,
		LiquidityRecipient: cfg.LiquidityRecipient,
		RevenueRecipient:   cfg.RevenueRecipient,
	}, deps.Ledger, adapter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	svc := &SaleService{
		cfg:         cfg,
		ledger:      deps.Ledger,
		minter:      deps.Minter,
		registries:  deps.Registries,
		replay:      deps.Replay,
		events:      deps.Events,
		now:         deps.Clock,
		codec:       signer.NewCodec(cfg.ChainID, cfg.Engine),
		verifier:    signer.NewVerifier(deps.Contracts),
		adapter:     adapter,
		normalizer:  payment.NewNormalizer(payment.Config{Engine: cfg.Engine, Utility: cfg.UtilityAsset}, deps.Ledger, adapter, deps.Minter),
		distributor: distributor,
		owner:       owner,
		signer:      cfg.Signer,
	}
	if svc.replay == nil {
		svc.replay = replay.NewMemoryLedger()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if cfg.ItemRegistry != (common.Address{}) {
		reg, err := svc.resolveRegistry(ctx, cfg.ItemRegistry)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		svc.registry = reg
	}
	return svc, nil
}

func validateConfig(cfg *SaleConfig, deps Deps) error {
	if deps.Ledger == nil || deps.Vault == nil || deps.Minter == nil || deps.Registries == nil {
		return fmt.Errorf("%w: missing collaborator", ErrInvalidConfig)
	}
	critical := map[string]common.Address{
		"engine":              cfg.Engine,
		"owner":               cfg.Owner,
		"utility asset":       cfg.UtilityAsset,
		"liquidity recipient": cfg.LiquidityRecipient,
		"revenue recipient":   cfg.RevenueRecipient,
		"wrapped reference":   deps.Minter.Token(),
	}
	for name, addr := range critical {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrZeroAddress, name)
		}
	}
	if cfg.BasePricePerItem == nil || cfg.BasePricePerItem.Sign() <= 0 {
		return fmt.Errorf("%w: base price must be positive", ErrInvalidConfig)
	}
	if cfg.BurnRatioBps+cfg.LiquidityRatioBps > distribution.BasisPoints {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, distribution.ErrInvalidRatios)
	}
	if cfg.MaxBatchSize < 0 {
		return fmt.Errorf("%w: negative batch cap", ErrInvalidConfig)
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	return nil
}

func (s *SaleService) Config() ConfigView {
	s.cfgMu.RLock()
	signerAddr := s.signer
	var registryAddr common.Address
	if s.registry != nil {
		registryAddr = s.registry.Address()
	}
	s.cfgMu.RUnlock()

	return ConfigView{
		ChainID:               s.cfg.ChainID,
		Engine:                s.cfg.Engine,
		Owner:                 s.owner.Owner(),
		PendingOwner:          s.owner.PendingOwner(),
		UtilityAsset:          s.cfg.UtilityAsset,
		ReferenceAsset:        chain.NativeAsset,
		WrappedReferenceAsset: s.minter.Token(),
		Venue:                 s.adapter.Vault(),
		PoolID:                s.cfg.PoolID.Hex(),
		LiquidityRecipient:    s.cfg.LiquidityRecipient,
		RevenueRecipient:      s.cfg.RevenueRecipient,
		BasePricePerItem:      new(big.Int).Set(s.cfg.BasePricePerItem),
		BurnRatioBps:          s.cfg.BurnRatioBps,
		LiquidityRatioBps:     s.cfg.LiquidityRatioBps,
		RevenueRatioBps:       distribution.BasisPoints - s.cfg.BurnRatioBps - s.cfg.LiquidityRatioBps,
		MaxBatchSize:          s.cfg.MaxBatchSize,
		Signer:                signerAddr,
		ItemRegistry:          registryAddr,
		DomainSeparator:       s.codec.DomainSeparator(),
	}
}

func (s *SaleService) Signer() common.Address {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.signer
}

func (s *SaleService) ItemRegistry() common.Address {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if s.registry == nil {
		return common.Address{}
	}
	return s.registry.Address()
}

func (s *SaleService) Owner() common.Address { return s.owner.Owner() }

func (s *SaleService) Codec() *signer.Codec { return s.codec }

func (s *SaleService) IsOrderUsed(ctx context.Context, orderID *big.Int) (bool, error) {
	return s.replay.IsUsed(ctx, orderID)
}

// RequiredUtility prices a batch in utility units.
func (s *SaleService) RequiredUtility(items int) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(items)), s.cfg.BasePricePerItem)
}

// Quote estimates the reference value needed for items at the current pool
// state. It never executes and is refused inside a settlement.
func (s *SaleService) Quote(ctx context.Context, items int) (*big.Int, error) {
	if items <= 0 {
		return nil, ErrEmptyItems
	}
	if items > s.cfg.MaxBatchSize {
		return nil, &BatchTooLargeError{Size: items, Max: s.cfg.MaxBatchSize}
	}
	return s.adapter.Quote(ctx, s.RequiredUtility(items))
}

func (s *SaleService) resolveRegistry(ctx context.Context, addr common.Address) (registry.ItemRegistry, error) {
	reg, err := s.registries.Lookup(addr)
	if err != nil {
		return nil, err
	}
	ok, err := reg.SupportsInterface(ctx, registry.InterfaceIDERC721)
	if err != nil {
		return nil, fmt.Errorf("probe registry interface: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotERC721, addr.Hex())
	}
	return reg, nil
}

func (s *SaleService) currentRegistry() (registry.ItemRegistry, error) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if s.registry == nil {
		return nil, ErrRegistryNotSet
	}
	return s.registry, nil
}
