package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/google/uuid"
)

// enter serializes a mutating entry point. A context that already carries the
// execution marker belongs to a call in progress, so it is refused rather than
// queued behind the lock it holds.
func (s *SaleService) enter(ctx context.Context) (context.Context, func(), error) {
	if chain.Executing(ctx) {
		return nil, nil, ErrReentrantCall
	}
	s.execMu.Lock()
	return chain.WithExecution(ctx), s.execMu.Unlock, nil
}

// unitOfWork groups the ledger snapshot, the pending replay mark and the
// buffered events of one entry point.
type unitOfWork struct {
	svc     *SaleService
	snap    int
	orderID *big.Int
	events  []model.Event
}

func (s *SaleService) begin() *unitOfWork {
	return &unitOfWork{svc: s, snap: s.ledger.Snapshot()}
}

func (u *unitOfWork) markUsed(ctx context.Context, orderID *big.Int) error {
	if err := u.svc.replay.MarkUsed(ctx, orderID); err != nil {
		return err
	}
	u.orderID = orderID
	return nil
}

func (u *unitOfWork) emit(kind model.EventKind, fill func(*model.Event)) {
	ev := model.Event{ID: uuid.NewString(), Kind: kind, CreatedAt: u.svc.now().UTC()}
	fill(&ev)
	u.events = append(u.events, ev)
}

// finish applies the unit when err is nil and rolls every part of it back
// otherwise. It returns the error the caller should report.
func (u *unitOfWork) finish(ctx context.Context, err error) error {
	if err == nil && u.orderID != nil {
		if cerr := u.svc.replay.Commit(ctx, u.orderID); cerr != nil {
			err = fmt.Errorf("commit replay mark: %w", cerr)
		}
	}
	if err != nil {
		u.rollback(ctx)
		return err
	}
	if derr := u.svc.ledger.DiscardSnapshot(u.snap); derr != nil {
		logger.Error("discard snapshot failed", "snapshot", u.snap, "error", derr)
	}
	if u.svc.events != nil && len(u.events) > 0 {
		u.svc.events.Publish(context.WithoutCancel(ctx), u.events)
	}
	return nil
}

func (u *unitOfWork) rollback(ctx context.Context) {
	if rerr := u.svc.ledger.RevertToSnapshot(u.snap); rerr != nil {
		logger.Error("revert snapshot failed", "snapshot", u.snap, "error", rerr)
	}
	if u.orderID != nil {
		if rerr := u.svc.replay.Release(context.WithoutCancel(ctx), u.orderID); rerr != nil {
			logger.Error("release replay mark failed", "order_id", u.orderID.String(), "error", rerr)
		}
	}
	u.events = nil
}

func unixNow(now func() time.Time) *big.Int {
	return big.NewInt(now().Unix())
}
