// Package market publishes advisory prices and settlement events to clients.
// Nothing here executes against the venue.
package market

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	RetryBaseDelay = 1 * time.Second
	RetryMaxDelay  = 30 * time.Second
	BasisPoints    = 10_000
)

// Quoter prices a batch against the venue without committing.
type Quoter interface {
	Quote(ctx context.Context, items int) (*big.Int, error)
	RequiredUtility(items int) *big.Int
}

type BoardConfig struct {
	ItemCounts  []int
	Refresh     time.Duration
	StaleAfter  time.Duration
	Decimals    int32
	SlippageBps int64
}

// Quote is one board entry. ReferenceMaxIn is what a client should sign as
// the amount so ordinary drift between quote and settlement still clears.
type Quote struct {
	Items           int
	RequiredUtility *big.Int
	ReferenceIn     *big.Int
	ReferenceMaxIn  *big.Int
	Display         decimal.Decimal
	UpdatedAt       time.Time
}

type PriceBoard struct {
	quoter Quoter
	cfg    BoardConfig
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[int]Quote

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPriceBoard(quoter Quoter, cfg BoardConfig) *PriceBoard {
	if cfg.Refresh <= 0 {
		cfg.Refresh = 15 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 4 * cfg.Refresh
	}
	counts := append([]int(nil), cfg.ItemCounts...)
	sort.Ints(counts)
	cfg.ItemCounts = counts

	ctx, cancel := context.WithCancel(context.Background())
	return &PriceBoard{
		quoter: quoter,
		cfg:    cfg,
		now:    time.Now,
		quotes: make(map[int]Quote),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the refresh loop in a background goroutine
func (b *PriceBoard) Start() {
	go b.runLoop()
}

func (b *PriceBoard) Stop() {
	b.cancel()
	<-b.done
}

func (b *PriceBoard) runLoop() {
	defer close(b.done)
	delay := RetryBaseDelay

	for {
		wait := b.cfg.Refresh
		if err := b.Refresh(b.ctx); err != nil {
			logger.Warn("price board refresh failed", "error", err, "retry_in", delay)
			wait = delay
			delay *= 2
			if delay > RetryMaxDelay {
				delay = RetryMaxDelay
			}
		} else {
			delay = RetryBaseDelay
		}

		select {
		case <-b.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Refresh requotes every tracked item count. Entries that fail keep their
// previous value and age toward stale.
func (b *PriceBoard) Refresh(ctx context.Context) error {
	var firstErr error
	for _, n := range b.cfg.ItemCounts {
		q, err := b.quote(ctx, n)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.mu.Lock()
		b.quotes[n] = q
		b.mu.Unlock()
	}
	return firstErr
}

// Get returns the board entry for items, quoting on demand for counts the
// board does not track. stale reports an entry older than StaleAfter.
func (b *PriceBoard) Get(ctx context.Context, items int) (q Quote, stale bool, err error) {
	b.mu.RLock()
	q, ok := b.quotes[items]
	b.mu.RUnlock()
	if !ok {
		q, err = b.quote(ctx, items)
		if err != nil {
			return Quote{}, false, err
		}
	}
	return q, b.now().Sub(q.UpdatedAt) > b.cfg.StaleAfter, nil
}

func (b *PriceBoard) quote(ctx context.Context, items int) (Quote, error) {
	in, err := b.quoter.Quote(ctx, items)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Items:           items,
		RequiredUtility: b.quoter.RequiredUtility(items),
		ReferenceIn:     in,
		ReferenceMaxIn:  WithSlippage(in, b.cfg.SlippageBps),
		Display:         decimal.NewFromBigInt(in, -b.cfg.Decimals),
		UpdatedAt:       b.now(),
	}, nil
}

// WithSlippage adds bps of amount, rounded up.
func WithSlippage(amount *big.Int, bps int64) *big.Int {
	if bps <= 0 {
		return new(big.Int).Set(amount)
	}
	extra := decimal.NewFromBigInt(amount, 0).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(BasisPoints)).
		Ceil()
	return new(big.Int).Add(amount, extra.BigInt())
}
