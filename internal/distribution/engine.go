package distribution

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/venue"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every ratio.
const BasisPoints = 10_000

var (
	ErrInvalidRatios                 = errors.New("burn and liquidity ratios exceed 10000 bps")
	ErrArithmeticOverflow            = errors.New("distribution arithmetic overflow")
	ErrInsufficientLiquidityReceived = errors.New("liquidity join returned no pool shares")
)

type InsufficientRevenueError struct {
	MinRequired *big.Int
	Actual      *big.Int
}

func (e *InsufficientRevenueError) Error() string {
	return fmt.Sprintf("insufficient revenue: min %s, actual %s", e.MinRequired, e.Actual)
}

type Burner interface {
	Burn(asset, from common.Address, amount *big.Int) error
}

// Venue is the subset of the adapter the distribution legs trade through.
type Venue interface {
	JoinSingleSided(ctx context.Context, utilityAmount *big.Int, recipient common.Address) (*big.Int, error)
	SwapExactIn(ctx context.Context, tokenIn, tokenOut common.Address, exactIn, minOut *big.Int, recipient common.Address) (*big.Int, error)
}

type Config struct {
	Engine             common.Address
	Utility            common.Address
	BurnRatioBps       uint64
	LiquidityRatioBps  uint64
	LiquidityRecipient common.Address
	RevenueRecipient   common.Address
}

type Shares struct {
	Burn      *big.Int
	Liquidity *big.Int
	Revenue   *big.Int
}

type Result struct {
	Shares
	RevenueReferenceOut *big.Int
}

type Engine struct {
	cfg    Config
	burner Burner
	venue  Venue
}

func NewEngine(cfg Config, burner Burner, v Venue) (*Engine, error) {
	if cfg.BurnRatioBps+cfg.LiquidityRatioBps > BasisPoints {
		return nil, fmt.Errorf("%w: %d + %d", ErrInvalidRatios, cfg.BurnRatioBps, cfg.LiquidityRatioBps)
	}
	return &Engine{cfg: cfg, burner: burner, venue: v}, nil
}

// Split partitions required into floor-rounded burn and liquidity shares; the
// revenue share takes the remainder so the three always sum to required.
func Split(required *big.Int, burnBps, liquidityBps uint64) (Shares, error) {
	if burnBps+liquidityBps > BasisPoints {
		return Shares{}, ErrInvalidRatios
	}
	total, overflow := uint256.FromBig(required)
	if overflow || required.Sign() < 0 {
		return Shares{}, ErrArithmeticOverflow
	}
	denom := uint256.NewInt(BasisPoints)

	burn, overflow := new(uint256.Int).MulDivOverflow(total, uint256.NewInt(burnBps), denom)
	if overflow {
		return Shares{}, ErrArithmeticOverflow
	}
	liquidity, overflow := new(uint256.Int).MulDivOverflow(total, uint256.NewInt(liquidityBps), denom)
	if overflow {
		return Shares{}, ErrArithmeticOverflow
	}
	revenue := new(uint256.Int).Sub(total, burn)
	revenue.Sub(revenue, liquidity)

	return Shares{Burn: burn.ToBig(), Liquidity: liquidity.ToBig(), Revenue: revenue.ToBig()}, nil
}

// Distribute consumes exactly required utility units held by the engine.
func (e *Engine) Distribute(ctx context.Context, required, minRevenue *big.Int) (*Result, error) {
	shares, err := Split(required, e.cfg.BurnRatioBps, e.cfg.LiquidityRatioBps)
	if err != nil {
		return nil, err
	}
	res := &Result{Shares: shares, RevenueReferenceOut: new(big.Int)}

	if shares.Burn.Sign() > 0 {
		if err := e.burner.Burn(e.cfg.Utility, e.cfg.Engine, shares.Burn); err != nil {
			return nil, fmt.Errorf("burn: %w", err)
		}
	}

	if shares.Liquidity.Sign() > 0 {
		receipt, err := e.venue.JoinSingleSided(ctx, shares.Liquidity, e.cfg.LiquidityRecipient)
		if err != nil {
			return nil, fmt.Errorf("add liquidity: %w", err)
		}
		if receipt.Sign() == 0 {
			return nil, ErrInsufficientLiquidityReceived
		}
	}

	if shares.Revenue.Sign() > 0 {
		out, err := e.venue.SwapExactIn(ctx, e.cfg.Utility, chain.NativeAsset, shares.Revenue, minRevenue, e.cfg.RevenueRecipient)
		if err != nil {
			var short *venue.InsufficientOutputError
			if errors.As(err, &short) {
				return nil, &InsufficientRevenueError{MinRequired: short.Min, Actual: short.Actual}
			}
			return nil, fmt.Errorf("revenue swap: %w", err)
		}
		res.RevenueReferenceOut = out
	}
	return res, nil
}
