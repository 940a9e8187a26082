package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel used for the chain's native value unit.
var NativeAsset = common.Address{}

// EIP1271MagicValue is returned by isValidSignature on success.
var EIP1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

var (
	ErrInsufficientBalance   = errors.New("chain: insufficient balance")
	ErrInsufficientAllowance = errors.New("chain: insufficient allowance")
	ErrNegativeAmount        = errors.New("chain: negative amount")
	ErrUnknownSnapshot       = errors.New("chain: unknown snapshot")
)

// Call carries the caller identity and the native value attached to an entry point.
type Call struct {
	From  common.Address
	Value *big.Int
}

// AttachedValue returns the attached native value, never nil.
func (c Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// ContractWallet is a signer identity backed by code (EIP-1271).
type ContractWallet interface {
	IsValidSignature(digest common.Hash, signature []byte) [4]byte
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// State is an in-process ledger of fungible balances with a revertible journal.
// Every mutation records an undo entry while at least one snapshot is open, so a
// unit of work can be rolled back as a whole.
type State struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int
	supply     map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	fees       map[common.Address]uint64
	wallets    map[common.Address]ContractWallet

	journal   []func()
	revisions []int
}

func NewState() *State {
	return &State{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		supply:     make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		fees:       make(map[common.Address]uint64),
		wallets:    make(map[common.Address]ContractWallet),
	}
}

// Snapshot opens a revision and returns its id.
func (s *State) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions = append(s.revisions, len(s.journal))
	return len(s.revisions) - 1
}

// RevertToSnapshot undoes every change recorded since the snapshot was taken.
func (s *State) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.revisions) {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	mark := s.revisions[id]
	for i := len(s.journal) - 1; i >= mark; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:mark]
	s.revisions = s.revisions[:id]
	return nil
}

// DiscardSnapshot keeps the changes made since the snapshot and closes it.
func (s *State) DiscardSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.revisions) {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	s.revisions = s.revisions[:id]
	if len(s.revisions) == 0 {
		s.journal = nil
	}
	return nil
}

// Journal records an undo entry for state kept outside the ledger.
func (s *State) Journal(undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(undo)
}

func (s *State) record(undo func()) {
	if len(s.revisions) == 0 {
		return
	}
	s.journal = append(s.journal, undo)
}

func (s *State) BalanceOf(asset, holder common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.balance(asset, holder))
}

func (s *State) TotalSupply(asset common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.supply[asset]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (s *State) Allowance(asset, owner, spender common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.allowances[allowanceKey{asset, owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// SetTransferFee makes transfers of asset deliver amount minus feeBps/10000;
// the fee is burned. Used to model fee-on-transfer tokens.
func (s *State) SetTransferFee(asset common.Address, feeBps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[asset] = feeBps
}

func (s *State) Mint(asset, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(asset, to, amount)
	s.addSupply(asset, amount)
	return nil
}

func (s *State) Burn(asset, from common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sub(asset, from, amount); err != nil {
		return err
	}
	s.addSupply(asset, new(big.Int).Neg(amount))
	return nil
}

func (s *State) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer(asset, from, to, amount)
}

func (s *State) Approve(asset, owner, spender common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowanceKey{asset, owner, spender}
	prev, had := s.allowances[key]
	s.allowances[key] = new(big.Int).Set(amount)
	s.record(func() {
		if had {
			s.allowances[key] = prev
		} else {
			delete(s.allowances, key)
		}
	})
}

func (s *State) TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if spender != from {
		key := allowanceKey{asset, from, spender}
		allowed, ok := s.allowances[key]
		if !ok || allowed.Cmp(amount) < 0 {
			return fmt.Errorf("%w: spender %s", ErrInsufficientAllowance, spender.Hex())
		}
		prev := allowed
		s.allowances[key] = new(big.Int).Sub(allowed, amount)
		s.record(func() { s.allowances[key] = prev })
	}
	return s.transfer(asset, from, to, amount)
}

// SetCode registers a contract wallet at addr.
func (s *State) SetCode(addr common.Address, wallet ContractWallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[addr] = wallet
}

func (s *State) HasCode(_ context.Context, addr common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.wallets[addr]
	return ok, nil
}

func (s *State) IsValidSignature(_ context.Context, addr common.Address, digest common.Hash, signature []byte) (bool, error) {
	s.mu.RLock()
	wallet, ok := s.wallets[addr]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return wallet.IsValidSignature(digest, signature) == EIP1271MagicValue, nil
}

func (s *State) transfer(asset, from, to common.Address, amount *big.Int) error {
	if err := s.sub(asset, from, amount); err != nil {
		return err
	}
	delivered := amount
	if feeBps := s.fees[asset]; feeBps > 0 && asset != NativeAsset {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeBps))
		fee.Quo(fee, big.NewInt(10_000))
		delivered = new(big.Int).Sub(amount, fee)
		s.addSupply(asset, new(big.Int).Neg(fee))
	}
	s.add(asset, to, delivered)
	return nil
}

func (s *State) balance(asset, holder common.Address) *big.Int {
	if book, ok := s.balances[asset]; ok {
		if v, ok := book[holder]; ok {
			return v
		}
	}
	return new(big.Int)
}

func (s *State) setBalance(asset, holder common.Address, value *big.Int) {
	book, ok := s.balances[asset]
	if !ok {
		book = make(map[common.Address]*big.Int)
		s.balances[asset] = book
	}
	prev, had := book[holder]
	book[holder] = value
	s.record(func() {
		if had {
			book[holder] = prev
		} else {
			delete(book, holder)
		}
	})
}

func (s *State) add(asset, holder common.Address, amount *big.Int) {
	s.setBalance(asset, holder, new(big.Int).Add(s.balance(asset, holder), amount))
}

func (s *State) sub(asset, holder common.Address, amount *big.Int) error {
	cur := s.balance(asset, holder)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, holder.Hex(), cur, asset.Hex(), amount)
	}
	s.setBalance(asset, holder, new(big.Int).Sub(cur, amount))
	return nil
}

func (s *State) addSupply(asset common.Address, delta *big.Int) {
	prev, had := s.supply[asset]
	base := new(big.Int)
	if had {
		base.Set(prev)
	}
	s.supply[asset] = base.Add(base, delta)
	s.record(func() {
		if had {
			s.supply[asset] = prev
		} else {
			delete(s.supply, asset)
		}
	})
}
