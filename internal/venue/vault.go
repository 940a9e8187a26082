package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SwapKind mirrors the Balancer vault enum.
type SwapKind uint8

const (
	GivenIn SwapKind = iota
	GivenOut
)

func (k SwapKind) String() string {
	if k == GivenOut {
		return "GIVEN_OUT"
	}
	return "GIVEN_IN"
}

// PoolID is a Balancer pool id: pool address (20 bytes) | specialization (2) | nonce (10).
type PoolID [32]byte

func NewPoolID(pool common.Address, nonce uint64) PoolID {
	var id PoolID
	copy(id[:20], pool.Bytes())
	new(big.Int).SetUint64(nonce).FillBytes(id[22:32])
	return id
}

func (id PoolID) Address() common.Address { return common.BytesToAddress(id[:20]) }
func (id PoolID) Hex() string             { return common.Hash(id).Hex() }

// BatchSwapStep field names follow the vault ABI tuple so it packs as-is.
type BatchSwapStep struct {
	PoolId        [32]byte
	AssetInIndex  *big.Int
	AssetOutIndex *big.Int
	Amount        *big.Int
	UserData      []byte
}

type FundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

type JoinPoolRequest struct {
	Assets              []common.Address
	MaxAmountsIn        []*big.Int
	UserData            []byte
	FromInternalBalance bool
}

// Vault is the external liquidity venue. Asset deltas are positive for
// amounts the vault receives and negative for amounts it sends. The zero
// address in an asset list stands for native value, wrapped by the vault.
type Vault interface {
	Address() common.Address
	GetPoolTokens(ctx context.Context, poolID PoolID) ([]common.Address, []*big.Int, error)
	QueryBatchSwap(ctx context.Context, kind SwapKind, swaps []BatchSwapStep, assets []common.Address, funds FundManagement) ([]*big.Int, error)
	BatchSwap(ctx context.Context, call chain.Call, kind SwapKind, swaps []BatchSwapStep, assets []common.Address, funds FundManagement, limits []*big.Int, deadline *big.Int) ([]*big.Int, error)
	JoinPool(ctx context.Context, call chain.Call, poolID PoolID, sender, recipient common.Address, req JoinPoolRequest) error
}

// Errors a vault reports.
var (
	ErrVaultSwapLimit        = errors.New("BAL#507 SWAP_LIMIT")
	ErrVaultDeadline         = errors.New("BAL#508 SWAP_DEADLINE")
	ErrPoolNotRegistered     = errors.New("BAL#500 INVALID_POOL_ID")
	ErrPoolNotInitialized    = errors.New("pool not initialized")
	ErrInsufficientLiquidity = errors.New("pool balance too low for requested output")
	ErrReadOnlyVault         = errors.New("vault is read-only")
)

const exactTokensInForBPTOut = 1

var (
	uint256Type, _      = abi.NewType("uint256", "", nil)
	uint256SliceType, _ = abi.NewType("uint256[]", "", nil)
	joinArgs            = abi.Arguments{{Type: uint256Type}, {Type: uint256SliceType}, {Type: uint256Type}}
)

// EncodeExactTokensInJoin builds EXACT_TOKENS_IN_FOR_BPT_OUT join user data.
func EncodeExactTokensInJoin(amountsIn []*big.Int, minBPTOut *big.Int) ([]byte, error) {
	return joinArgs.Pack(big.NewInt(exactTokensInForBPTOut), amountsIn, minBPTOut)
}

func DecodeExactTokensInJoin(data []byte) ([]*big.Int, *big.Int, error) {
	values, err := joinArgs.Unpack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode join user data: %w", err)
	}
	kind, _ := values[0].(*big.Int)
	if kind == nil || kind.Int64() != exactTokensInForBPTOut {
		return nil, nil, fmt.Errorf("unsupported join kind %v", values[0])
	}
	amounts, _ := values[1].([]*big.Int)
	minOut, _ := values[2].(*big.Int)
	return amounts, minOut, nil
}
