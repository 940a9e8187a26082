package repository

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisReplayLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	ledger := NewRedisReplayLedger(client, time.Minute)
	id := big.NewInt(42)

	used, err := ledger.IsUsed(ctx, id)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, ledger.MarkUsed(ctx, id))
	assert.ErrorIs(t, ledger.MarkUsed(ctx, id), replay.ErrAlreadyUsed)

	require.NoError(t, ledger.Release(ctx, id))
	used, err = ledger.IsUsed(ctx, id)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, ledger.MarkUsed(ctx, id))
	require.NoError(t, ledger.Commit(ctx, id))
	assert.Error(t, ledger.Commit(ctx, id))
	require.NoError(t, ledger.Release(ctx, id))
	used, err = ledger.IsUsed(ctx, id)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestRedisReplayLedgerExpiredMarkNotReleasedByLateOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	late := NewRedisReplayLedger(client, time.Second)
	current := NewRedisReplayLedger(client, time.Second)
	id := big.NewInt(7)

	require.NoError(t, late.MarkUsed(ctx, id))
	mr.FastForward(2 * time.Second)
	require.NoError(t, current.MarkUsed(ctx, id))

	require.NoError(t, late.Release(ctx, id))
	used, err := current.IsUsed(ctx, id)
	require.NoError(t, err)
	assert.True(t, used)

	assert.Error(t, late.Commit(ctx, id))
	require.NoError(t, current.Commit(ctx, id))
	mr.FastForward(time.Hour)
	used, err = current.IsUsed(ctx, id)
	require.NoError(t, err)
	assert.True(t, used)
}
