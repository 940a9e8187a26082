package market

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuoter struct {
	mu    sync.Mutex
	price int64
	fail  bool
	calls int
}

func (s *stubQuoter) Quote(_ context.Context, items int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, errors.New("venue down")
	}
	return big.NewInt(s.price * int64(items)), nil
}

func (s *stubQuoter) RequiredUtility(items int) *big.Int {
	return big.NewInt(50 * int64(items))
}

func TestPriceBoardRefreshAndStale(t *testing.T) {
	ctx := context.Background()
	q := &stubQuoter{price: 1_000_000_000_000_000}
	board := NewPriceBoard(q, BoardConfig{ItemCounts: []int{5, 1}, Refresh: time.Second, StaleAfter: time.Minute, Decimals: 18, SlippageBps: 100})
	now := time.Unix(1_700_000_000, 0)
	board.now = func() time.Time { return now }

	require.NoError(t, board.Refresh(ctx))
	got, stale, err := board.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, "5000000000000000", got.ReferenceIn.String())
	assert.Equal(t, "5050000000000000", got.ReferenceMaxIn.String())
	assert.Equal(t, "0.005", got.Display.String())
	assert.Equal(t, int64(250), got.RequiredUtility.Int64())

	// a failed refresh keeps the old entry, which then goes stale
	q.fail = true
	assert.Error(t, board.Refresh(ctx))
	now = now.Add(2 * time.Minute)
	got, stale, err = board.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "5000000000000000", got.ReferenceIn.String())
}

func TestPriceBoardQuotesUntrackedCountsOnDemand(t *testing.T) {
	q := &stubQuoter{price: 10}
	board := NewPriceBoard(q, BoardConfig{ItemCounts: []int{1}})
	got, stale, err := board.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, int64(30), got.ReferenceIn.Int64())

	q.fail = true
	_, _, err = board.Get(context.Background(), 4)
	assert.Error(t, err)
}

func TestPriceBoardLoopStops(t *testing.T) {
	q := &stubQuoter{price: 10}
	board := NewPriceBoard(q, BoardConfig{ItemCounts: []int{1}, Refresh: 10 * time.Millisecond})
	board.Start()
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.calls >= 2
	}, time.Second, 5*time.Millisecond)
	board.Stop()
}

func TestWithSlippage(t *testing.T) {
	assert.Equal(t, int64(101), WithSlippage(big.NewInt(100), 100).Int64())
	assert.Equal(t, int64(103), WithSlippage(big.NewInt(101), 100).Int64()) // 1.01 rounds up to 2
	assert.Equal(t, int64(100), WithSlippage(big.NewInt(100), 0).Int64())
}
