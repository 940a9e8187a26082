package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/itemsale/internal/middleware"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const (
	idempotencyQueryTimeout = 3 * time.Second
	// DefaultIdempotencyStaleLock bounds how long a crashed request can hold a key.
	DefaultIdempotencyStaleLock = 2 * time.Minute
)

// PostgresIdempotencyStore shares idempotency keys across replicas. A key
// still marked processing after staleLock is handed to the next request.
type PostgresIdempotencyStore struct {
	db        *sqlx.DB
	staleLock time.Duration
}

func NewPostgresIdempotencyStore(db *sqlx.DB) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db, staleLock: DefaultIdempotencyStaleLock}
	if err := store.ensureSchema(context.Background()); err != nil {
		logger.Error("ensure idempotency schema failed", "error", err)
	}
	return store
}

func (s *PostgresIdempotencyStore) GetOrLock(key, fingerprint string) (*middleware.IdempotencyRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyQueryTimeout)
	defer cancel()

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_idempotency (key, fingerprint, processing, created_at)
		VALUES ($1, $2, true, $3)
		ON CONFLICT (key) DO UPDATE
			SET fingerprint = EXCLUDED.fingerprint, processing = true, status_code = 0,
				response_body = NULL, created_at = EXCLUDED.created_at
			WHERE settlement_idempotency.processing AND settlement_idempotency.created_at < $4
	`, key, fingerprint, now, now.Add(-s.staleLock))
	if err != nil {
		logger.Error("idempotency lock failed", "key", key, "error", err)
		return nil, false
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil, false
	}

	var rec middleware.IdempotencyRecord
	err = s.db.QueryRowxContext(ctx, `
		SELECT status_code, response_body, fingerprint, created_at, processing
		FROM settlement_idempotency
		WHERE key = $1
	`, key).Scan(&rec.Status, &rec.Body, &rec.Fingerprint, &rec.CreatedAt, &rec.Processing)
	if err != nil {
		logger.Error("idempotency lookup failed", "key", key, "error", err)
		return nil, false
	}
	return &rec, true
}

func (s *PostgresIdempotencyStore) Save(key, fingerprint string, status int, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyQueryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE settlement_idempotency
		SET status_code = $2, response_body = $3, fingerprint = $4, processing = false
		WHERE key = $1
	`, key, status, body, fingerprint); err != nil {
		logger.Error("idempotency save failed", "key", key, "error", err)
	}
}

func (s *PostgresIdempotencyStore) Unlock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyQueryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settlement_idempotency WHERE key = $1 AND processing`, key); err != nil {
		logger.Error("idempotency unlock failed", "key", key, "error", err)
	}
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_idempotency (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			fingerprint TEXT NOT NULL DEFAULT '',
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS settlement_idempotency_created_at ON settlement_idempotency (created_at)`)
	return err
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM settlement_idempotency WHERE created_at < $1`, cutoff)
	return err
}
