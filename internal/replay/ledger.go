package replay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var ErrAlreadyUsed = errors.New("order already used")

// Ledger records consumed order identifiers. Paid and free orders share the
// identifier space.
//
// MarkUsed places a pending mark that already counts as used. The settlement
// that placed it either Commits (permanent) or Releases it when the unit of
// work is rolled back. A committed id is never released.
type Ledger interface {
	IsUsed(ctx context.Context, orderID *big.Int) (bool, error)
	MarkUsed(ctx context.Context, orderID *big.Int) error
	Commit(ctx context.Context, orderID *big.Int) error
	Release(ctx context.Context, orderID *big.Int) error
}

// AlreadyUsed wraps ErrAlreadyUsed with the offending id.
func AlreadyUsed(orderID *big.Int) error {
	return fmt.Errorf("%w: %s", ErrAlreadyUsed, orderID)
}

// Key is the canonical storage key of an order id.
func Key(orderID *big.Int) string {
	if orderID == nil {
		return "0"
	}
	return orderID.String()
}

type entryState uint8

const (
	statePending entryState = iota + 1
	stateUsed
)

type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]entryState
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]entryState)}
}

func (l *MemoryLedger) IsUsed(_ context.Context, orderID *big.Int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[Key(orderID)]
	return ok, nil
}

func (l *MemoryLedger) MarkUsed(_ context.Context, orderID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := Key(orderID)
	if _, ok := l.entries[key]; ok {
		return AlreadyUsed(orderID)
	}
	l.entries[key] = statePending
	return nil
}

func (l *MemoryLedger) Commit(_ context.Context, orderID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := Key(orderID)
	if _, ok := l.entries[key]; !ok {
		return fmt.Errorf("commit of unmarked order %s", key)
	}
	l.entries[key] = stateUsed
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, orderID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := Key(orderID)
	if l.entries[key] == statePending {
		delete(l.entries, key)
	}
	return nil
}
