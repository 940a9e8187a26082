package repository

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const replayUsed = "used"

// commitScript promotes the caller's pending mark to a permanent one.
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// releaseScript drops a mark only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisReplayLedger keeps consumed order ids in Redis so several engine
// processes can share one identifier space. Pending marks expire after
// pendingTTL so a crashed settlement cannot burn an id forever. Each pending
// mark carries a per-call token; Commit and Release only act on a key that
// still holds the token this ledger wrote, so a late settlement cannot touch
// a mark another process took after expiry.
type RedisReplayLedger struct {
	client     *RedisClient
	prefix     string
	pendingTTL time.Duration
	tokens     sync.Map // replay key -> pending token
}

func NewRedisReplayLedger(client *RedisClient, pendingTTL time.Duration) *RedisReplayLedger {
	if pendingTTL <= 0 {
		pendingTTL = time.Minute
	}
	return &RedisReplayLedger{
		client:     client,
		prefix:     "itemsale:order:",
		pendingTTL: pendingTTL,
	}
}

func (l *RedisReplayLedger) key(orderID *big.Int) string {
	return l.prefix + replay.Key(orderID)
}

func (l *RedisReplayLedger) IsUsed(ctx context.Context, orderID *big.Int) (bool, error) {
	n, err := l.client.Client.Exists(ctx, l.key(orderID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisReplayLedger) MarkUsed(ctx context.Context, orderID *big.Int) error {
	token := uuid.NewString()
	ok, err := l.client.Client.SetNX(ctx, l.key(orderID), token, l.pendingTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return replay.AlreadyUsed(orderID)
	}
	l.tokens.Store(replay.Key(orderID), token)
	return nil
}

func (l *RedisReplayLedger) takeToken(orderID *big.Int) (string, bool) {
	v, ok := l.tokens.LoadAndDelete(replay.Key(orderID))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (l *RedisReplayLedger) Commit(ctx context.Context, orderID *big.Int) error {
	token, ok := l.takeToken(orderID)
	if !ok {
		return fmt.Errorf("commit of unmarked order %s", replay.Key(orderID))
	}
	n, err := commitScript.Run(ctx, l.client.Client, []string{l.key(orderID)}, token, replayUsed).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pending mark for order %s expired before commit", replay.Key(orderID))
	}
	return nil
}

func (l *RedisReplayLedger) Release(ctx context.Context, orderID *big.Int) error {
	token, ok := l.takeToken(orderID)
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, l.client.Client, []string{l.key(orderID)}, token).Err()
}
