package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/GoPolymarket/itemsale/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// MintByOwner issues itemIDs[i] to recipients[i] without signature or replay checks.
func (s *SaleService) MintByOwner(ctx context.Context, call chain.Call, recipients []common.Address, itemIDs []*big.Int) error {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	err = s.mintByOwner(ctx, call, recipients, itemIDs)
	s.observe(flowOwner, call.From, nil, len(itemIDs), err)
	return err
}

func (s *SaleService) mintByOwner(ctx context.Context, call chain.Call, recipients []common.Address, itemIDs []*big.Int) error {
	if err := s.owner.CheckOwner(call.From); err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		return ErrEmptyItems
	}
	if len(itemIDs) > s.cfg.MaxBatchSize {
		return &BatchTooLargeError{Size: len(itemIDs), Max: s.cfg.MaxBatchSize}
	}
	if len(recipients) != len(itemIDs) {
		return &LengthMismatchError{Recipients: len(recipients), Items: len(itemIDs)}
	}
	for i, to := range recipients {
		if to == (common.Address{}) {
			return fmt.Errorf("%w: recipient %d", ErrZeroAddress, i)
		}
		if !isWord(itemIDs[i]) {
			return fmt.Errorf("%w: item id %d", ErrInvalidOrderInput, i)
		}
	}
	reg, err := s.currentRegistry()
	if err != nil {
		return err
	}

	uow := s.begin()
	err = s.mintAll(ctx, reg, itemIDs, func(i int) common.Address { return recipients[i] })
	if err == nil {
		to := append([]common.Address(nil), recipients...)
		ids := copyIDs(itemIDs)
		uow.emit(model.EventBatchMinted, func(ev *model.Event) {
			ev.Mint = &model.BatchMinted{Operator: call.From, Recipients: to, ItemIDs: ids}
		})
	}
	return uow.finish(ctx, err)
}

// SetSigner replaces the authorized order signer. Setting the current value
// changes nothing and emits nothing.
func (s *SaleService) SetSigner(ctx context.Context, call chain.Call, next common.Address) (bool, error) {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer leave()

	if err := s.owner.CheckOwner(call.From); err != nil {
		return false, err
	}
	if next == (common.Address{}) {
		return false, fmt.Errorf("%w: signer", ErrZeroAddress)
	}

	s.cfgMu.Lock()
	prev := s.signer
	if prev == next {
		s.cfgMu.Unlock()
		return false, nil
	}
	s.signer = next
	s.cfgMu.Unlock()

	s.publishChange(ctx, model.EventSignerUpdated, prev, next)
	logger.Info("signer updated", "previous", prev.Hex(), "new", next.Hex())
	return true, nil
}

// SetItemRegistry repoints minting at another registry, which must report
// ERC-721 support. Setting the current value is a no-op.
func (s *SaleService) SetItemRegistry(ctx context.Context, call chain.Call, next common.Address) (bool, error) {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer leave()

	if err := s.owner.CheckOwner(call.From); err != nil {
		return false, err
	}
	if next == (common.Address{}) {
		return false, fmt.Errorf("%w: item registry", ErrZeroAddress)
	}
	prev := s.ItemRegistry()
	if prev == next {
		return false, nil
	}
	reg, err := s.resolveRegistry(ctx, next)
	if err != nil {
		return false, err
	}

	s.cfgMu.Lock()
	s.registry = reg
	s.cfgMu.Unlock()

	s.publishChange(ctx, model.EventItemRegistryUpdated, prev, next)
	logger.Info("item registry updated", "previous", prev.Hex(), "new", next.Hex())
	return true, nil
}

func (s *SaleService) TransferOwnership(ctx context.Context, call chain.Call, candidate common.Address) error {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	change, err := s.owner.TransferOwnership(call.From, candidate)
	if err != nil {
		return err
	}
	s.publishChange(ctx, model.EventOwnershipTransferStarted, change.Previous, change.New)
	return nil
}

func (s *SaleService) AcceptOwnership(ctx context.Context, call chain.Call) error {
	ctx, leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	change, err := s.owner.AcceptOwnership(call.From)
	if err != nil {
		return err
	}
	s.publishChange(ctx, model.EventOwnershipTransferred, change.Previous, change.New)
	logger.Info("ownership transferred", "previous", change.Previous.Hex(), "new", change.New.Hex())
	return nil
}

func (s *SaleService) RenounceOwnership(_ context.Context, call chain.Call) error {
	metrics.Rejects.WithLabelValues("renounce").Inc()
	return s.owner.RenounceOwnership(call.From)
}

func (s *SaleService) publishChange(ctx context.Context, kind model.EventKind, prev, next common.Address) {
	uow := s.begin()
	uow.emit(kind, func(ev *model.Event) {
		ev.Change = &model.AddressChange{Previous: prev, New: next}
	})
	_ = uow.finish(ctx, nil)
}

// PendingOwner reports the nominated owner, zero when none.
func (s *SaleService) PendingOwner() common.Address { return s.owner.PendingOwner() }
