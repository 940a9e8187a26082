package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ERC-165 identifiers.
var (
	InterfaceIDERC165 = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	InterfaceIDERC721 = [4]byte{0x80, 0xac, 0x58, 0xcd}
)

// Capability is a role bit granted on a registry.
type Capability uint8

const (
	CapMinter Capability = 1 << iota
	CapAdmin
)

var (
	ErrMissingCapability = errors.New("registry: caller lacks minter capability")
	ErrItemExists        = errors.New("registry: item already minted")
	ErrZeroRecipient     = errors.New("registry: mint to zero address")
	ErrNonTransferable   = errors.New("registry: items are non-transferable")
	ErrUnknownRegistry   = errors.New("registry: no registry at address")
)

// ItemRegistry is the external collection the engine mints into.
type ItemRegistry interface {
	Address() common.Address
	SafeMint(ctx context.Context, caller, to common.Address, itemID *big.Int) error
	SupportsInterface(ctx context.Context, id [4]byte) (bool, error)
}

// Journal registers undo entries with the enclosing unit of work.
type Journal interface {
	Journal(undo func())
}

// Memory is an in-process soulbound collection.
type Memory struct {
	address common.Address
	journal Journal
	erc721  bool

	mu       sync.RWMutex
	caps     map[common.Address]Capability
	owners   map[string]common.Address
	balances map[common.Address]uint64
}

func NewMemory(address common.Address, journal Journal) *Memory {
	return &Memory{
		address:  address,
		journal:  journal,
		erc721:   true,
		caps:     make(map[common.Address]Capability),
		owners:   make(map[string]common.Address),
		balances: make(map[common.Address]uint64),
	}
}

// NewIncompatible returns a registry that does not report ERC-721 support.
func NewIncompatible(address common.Address, journal Journal) *Memory {
	m := NewMemory(address, journal)
	m.erc721 = false
	return m
}

func (m *Memory) Address() common.Address { return m.address }

func (m *Memory) Grant(account common.Address, c Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps[account] |= c
}

func (m *Memory) Revoke(account common.Address, c Capability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps[account] &^= c
}

func (m *Memory) HasCapability(account common.Address, c Capability) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caps[account]&c == c
}

func (m *Memory) SupportsInterface(_ context.Context, id [4]byte) (bool, error) {
	switch id {
	case InterfaceIDERC165:
		return true, nil
	case InterfaceIDERC721:
		return m.erc721, nil
	}
	return false, nil
}

func (m *Memory) SafeMint(_ context.Context, caller, to common.Address, itemID *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	key := itemID.String()

	m.mu.Lock()
	if m.caps[caller]&CapMinter == 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMissingCapability, caller.Hex())
	}
	if _, ok := m.owners[key]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrItemExists, key)
	}
	m.owners[key] = to
	m.balances[to]++
	m.mu.Unlock()

	if m.journal != nil {
		m.journal.Journal(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.owners, key)
			m.balances[to]--
		})
	}
	return nil
}

func (m *Memory) OwnerOf(itemID *big.Int) (common.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[itemID.String()]
	return owner, ok
}

func (m *Memory) BalanceOf(owner common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[owner]
}

func (m *Memory) Transfer(context.Context, common.Address, common.Address, *big.Int) error {
	return ErrNonTransferable
}

// Directory resolves registry addresses to registries, so the engine can be
// repointed at a different deployed collection by address.
type Directory struct {
	mu         sync.RWMutex
	registries map[common.Address]ItemRegistry
}

func NewDirectory(registries ...ItemRegistry) *Directory {
	d := &Directory{registries: make(map[common.Address]ItemRegistry)}
	for _, r := range registries {
		d.registries[r.Address()] = r
	}
	return d
}

func (d *Directory) Register(r ItemRegistry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registries[r.Address()] = r
}

func (d *Directory) Lookup(addr common.Address) (ItemRegistry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.registries[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, addr.Hex())
	}
	return r, nil
}
