package replay

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	id := big.NewInt(9)

	used, err := l.IsUsed(ctx, id)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, l.MarkUsed(ctx, id))
	used, _ = l.IsUsed(ctx, id)
	assert.True(t, used, "pending marks count as used")

	assert.ErrorIs(t, l.MarkUsed(ctx, id), ErrAlreadyUsed)

	require.NoError(t, l.Release(ctx, id))
	used, _ = l.IsUsed(ctx, id)
	assert.False(t, used)

	require.NoError(t, l.MarkUsed(ctx, id))
	require.NoError(t, l.Commit(ctx, id))
	require.NoError(t, l.Release(ctx, id))
	used, _ = l.IsUsed(ctx, id)
	assert.True(t, used, "committed ids are never released")
}

func TestMemoryLedgerCommitRequiresMark(t *testing.T) {
	assert.Error(t, NewMemoryLedger().Commit(context.Background(), big.NewInt(1)))
}

func TestMemoryLedgerConcurrentMark(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.MarkUsed(ctx, big.NewInt(77)) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
