package middleware

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

// IdempotencyRecord is a cached settlement response. Fingerprint is the
// keccak256 of the request body the key was first used with.
type IdempotencyRecord struct {
	Status      int
	Body        []byte
	Fingerprint string
	CreatedAt   time.Time
	Processing  bool // 正在处理中，用于防止并发竞争
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if the key exists; (nil, false) if the
	// caller now holds the lock.
	GetOrLock(key, fingerprint string) (*IdempotencyRecord, bool)
	Save(key, fingerprint string, status int, body []byte)
	Unlock(key string)
}

// InMemIdempotencyStore 单实例部署使用，多实例请用 Redis 或 Postgres
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore() *InMemIdempotencyStore {
	return &InMemIdempotencyStore{records: make(map[string]*IdempotencyRecord)}
}

func (s *InMemIdempotencyStore) GetOrLock(key, fingerprint string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		cp := *rec
		return &cp, true
	}
	s.records[key] = &IdempotencyRecord{Fingerprint: fingerprint, Processing: true, CreatedAt: time.Now()}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(key, fingerprint string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &IdempotencyRecord{
		Status:      status,
		Body:        body,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
	}
}

func (s *InMemIdempotencyStore) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// IdempotencyMiddleware replays the stored response when a purchase or admin
// write is retried with the same X-Idempotency-Key. Reads are never cached.
// Reusing a key with a different body is rejected instead of replayed.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" || !isWrite(c.Request.Method) {
			c.Next()
			return
		}
		caller, ok := CallerFrom(c)
		if !ok {
			c.Next()
			return
		}

		var payload []byte
		if c.Request.Body != nil {
			payload, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(payload))
		}
		fingerprint := crypto.Keccak256Hash(payload).Hex()
		key := caller.ID() + ":" + c.Request.Method + ":" + c.FullPath() + ":" + idemKey

		record, hit := store.GetOrLock(key, fingerprint)
		if hit {
			switch {
			case record.Fingerprint != "" && record.Fingerprint != fingerprint:
				c.Error(apperrors.NewInvalidRequest("idempotency key reused with a different request").
					WithDetail("idempotency_key", idemKey))
			case record.Processing:
				c.Error(apperrors.New(apperrors.ErrReplayed, "request in progress", nil))
			default:
				c.Header("Idempotent-Replay", "true")
				c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			}
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// 被拒绝的请求没有副作用 (错误由外层 ErrorHandler 渲染，此时尚未写出)，允许重试
		if len(c.Errors) > 0 && !c.Writer.Written() || c.Writer.Status() >= http.StatusInternalServerError {
			store.Unlock(key)
			return
		}
		store.Save(key, fingerprint, c.Writer.Status(), w.body)
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
