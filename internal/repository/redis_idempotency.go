package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
)

const idempotencyPrefix = "itemsale:idem:"

// RedisIdempotencyStore keeps idempotency records as JSON values with a TTL,
// so a crashed holder's lock expires on its own.
type RedisIdempotencyStore struct {
	client *RedisClient
	ttl    time.Duration
}

type idemWire struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   int64  `json:"created_at"`
	Processing  bool   `json:"processing"`
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) GetOrLock(key, fingerprint string) (*middleware.IdempotencyRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyQueryTimeout)
	defer cancel()

	lock, _ := json.Marshal(idemWire{Fingerprint: fingerprint, CreatedAt: time.Now().Unix(), Processing: true})
	locked, err := s.client.Client.SetNX(ctx, idempotencyPrefix+key, lock, s.ttl).Result()
	if err != nil {
		logger.Error("idempotency lock failed", "key", key, "error", err)
		return nil, false
	}
	if locked {
		return nil, false
	}

	raw, err := s.client.Client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		// expired between SetNX and Get; treat as a fresh request
		return nil, false
	}
	var wire idemWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		logger.Warn("corrupt idempotency record", "key", key, "error", err)
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:      wire.Status,
		Body:        wire.Body,
		Fingerprint: wire.Fingerprint,
		CreatedAt:   time.Unix(wire.CreatedAt, 0).UTC(),
		Processing:  wire.Processing,
	}, true
}

func (s *RedisIdempotencyStore) Save(key, fingerprint string, status int, body []byte) {
	payload, _ := json.Marshal(idemWire{
		Status:      status,
		Body:        body,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().Unix(),
	})
	if err := s.client.Client.Set(context.Background(), idempotencyPrefix+key, payload, s.ttl).Err(); err != nil {
		logger.Error("idempotency save failed", "key", key, "error", err)
	}
}

func (s *RedisIdempotencyStore) Unlock(key string) {
	if err := s.client.Client.Del(context.Background(), idempotencyPrefix+key).Err(); err != nil {
		logger.Error("idempotency unlock failed", "key", key, "error", err)
	}
}
