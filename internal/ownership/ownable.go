package ownership

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotOwner         = errors.New("caller is not the owner")
	ErrNotPendingOwner  = errors.New("caller is not the pending owner")
	ErrRenounceDisabled = errors.New("renouncing ownership is disabled")
	ErrZeroOwner        = errors.New("owner cannot be the zero address")
)

// Change describes an ownership transition for event emission.
type Change struct {
	Previous common.Address
	New      common.Address
}

// Ownable is a two-step owner: a transfer names a candidate, which must accept.
type Ownable struct {
	mu      sync.RWMutex
	owner   common.Address
	pending common.Address
}

func New(owner common.Address) (*Ownable, error) {
	if owner == (common.Address{}) {
		return nil, ErrZeroOwner
	}
	return &Ownable{owner: owner}, nil
}

func (o *Ownable) Owner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

func (o *Ownable) PendingOwner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pending
}

func (o *Ownable) CheckOwner(caller common.Address) error {
	if caller != o.Owner() {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership nominates candidate. A zero candidate cancels a pending transfer.
func (o *Ownable) TransferOwnership(caller, candidate common.Address) (Change, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return Change{}, ErrNotOwner
	}
	o.pending = candidate
	return Change{Previous: o.owner, New: candidate}, nil
}

func (o *Ownable) AcceptOwnership(caller common.Address) (Change, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == (common.Address{}) || caller != o.pending {
		return Change{}, ErrNotPendingOwner
	}
	change := Change{Previous: o.owner, New: caller}
	o.owner = caller
	o.pending = common.Address{}
	return change, nil
}

// RenounceOwnership fails for every caller. There is no transition to an
// ownerless state.
func (o *Ownable) RenounceOwnership(common.Address) error {
	return ErrRenounceDisabled
}
