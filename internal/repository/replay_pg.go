package repository

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/jmoiron/sqlx"
)

// PostgresReplayLedger stores consumed order ids in the used_orders table.
type PostgresReplayLedger struct {
	db *sqlx.DB
}

func NewPostgresReplayLedger(db *sqlx.DB) *PostgresReplayLedger {
	l := &PostgresReplayLedger{db: db}
	_ = l.ensureSchema(context.Background())
	return l
}

func (l *PostgresReplayLedger) IsUsed(ctx context.Context, orderID *big.Int) (bool, error) {
	var exists bool
	err := l.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM used_orders WHERE order_id = $1)`, replay.Key(orderID))
	return exists, err
}

func (l *PostgresReplayLedger) MarkUsed(ctx context.Context, orderID *big.Int) error {
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO used_orders (order_id, state, created_at)
		VALUES ($1, 'pending', $2)
		ON CONFLICT (order_id) DO NOTHING
	`, replay.Key(orderID), time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return replay.AlreadyUsed(orderID)
	}
	return nil
}

func (l *PostgresReplayLedger) Commit(ctx context.Context, orderID *big.Int) error {
	result, err := l.db.ExecContext(ctx, `UPDATE used_orders SET state = 'used' WHERE order_id = $1`, replay.Key(orderID))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("commit of unmarked order %s", replay.Key(orderID))
	}
	return nil
}

func (l *PostgresReplayLedger) Release(ctx context.Context, orderID *big.Int) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM used_orders WHERE order_id = $1 AND state = 'pending'`, replay.Key(orderID))
	return err
}

// Cleanup drops pending marks left behind by a process that died mid-settlement.
func (l *PostgresReplayLedger) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := l.db.ExecContext(ctx, `DELETE FROM used_orders WHERE state = 'pending' AND created_at < $1`, cutoff)
	return err
}

func (l *PostgresReplayLedger) ensureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS used_orders (
			order_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}
