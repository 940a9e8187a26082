package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const vaultABI = `[
{"name":"getPoolTokens","type":"function","stateMutability":"view",
 "inputs":[{"name":"poolId","type":"bytes32"}],
 "outputs":[{"name":"tokens","type":"address[]"},{"name":"balances","type":"uint256[]"},{"name":"lastChangeBlock","type":"uint256"}]},
{"name":"queryBatchSwap","type":"function","stateMutability":"nonpayable",
 "inputs":[
  {"name":"kind","type":"uint8"},
  {"name":"swaps","type":"tuple[]","components":[
   {"name":"poolId","type":"bytes32"},{"name":"assetInIndex","type":"uint256"},{"name":"assetOutIndex","type":"uint256"},
   {"name":"amount","type":"uint256"},{"name":"userData","type":"bytes"}]},
  {"name":"assets","type":"address[]"},
  {"name":"funds","type":"tuple","components":[
   {"name":"sender","type":"address"},{"name":"fromInternalBalance","type":"bool"},
   {"name":"recipient","type":"address"},{"name":"toInternalBalance","type":"bool"}]}],
 "outputs":[{"name":"assetDeltas","type":"int256[]"}]}
]`

// RPCVault reads a deployed Balancer vault through eth_call. It serves pool
// introspection and advisory quotes only; committing calls need a transaction
// signer and are refused.
type RPCVault struct {
	address common.Address
	rpcURL  string
	timeout time.Duration
	abi     abi.ABI

	mu     sync.Mutex
	client *ethclient.Client
}

func NewRPCVault(rpcURL string, address common.Address, timeout time.Duration) (*RPCVault, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault abi: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RPCVault{address: address, rpcURL: strings.TrimSpace(rpcURL), timeout: timeout, abi: parsed}, nil
}

func (v *RPCVault) Address() common.Address { return v.address }

func (v *RPCVault) GetPoolTokens(ctx context.Context, poolID PoolID) ([]common.Address, []*big.Int, error) {
	out, err := v.call(ctx, "getPoolTokens", [32]byte(poolID))
	if err != nil {
		return nil, nil, err
	}
	tokens, ok := out[0].([]common.Address)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected getPoolTokens tokens type %T", out[0])
	}
	balances, ok := out[1].([]*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected getPoolTokens balances type %T", out[1])
	}
	return tokens, balances, nil
}

func (v *RPCVault) QueryBatchSwap(ctx context.Context, kind SwapKind, swaps []BatchSwapStep, assets []common.Address, funds FundManagement) ([]*big.Int, error) {
	out, err := v.call(ctx, "queryBatchSwap", uint8(kind), swaps, assets, funds)
	if err != nil {
		return nil, err
	}
	deltas, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected queryBatchSwap output type %T", out[0])
	}
	return deltas, nil
}

func (v *RPCVault) BatchSwap(context.Context, chain.Call, SwapKind, []BatchSwapStep, []common.Address, FundManagement, []*big.Int, *big.Int) ([]*big.Int, error) {
	return nil, ErrReadOnlyVault
}

func (v *RPCVault) JoinPool(context.Context, chain.Call, PoolID, common.Address, common.Address, JoinPoolRequest) error {
	return ErrReadOnlyVault
}

func (v *RPCVault) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := v.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	client, err := v.getClient(callCtx)
	if err != nil {
		return nil, err
	}
	raw, err := client.CallContract(callCtx, ethereum.CallMsg{To: &v.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc call %s failed: %w", method, err)
	}
	return v.abi.Unpack(method, raw)
}

func (v *RPCVault) getClient(ctx context.Context) (*ethclient.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client != nil {
		return v.client, nil
	}
	client, err := ethclient.DialContext(ctx, v.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	v.client = client
	return v.client, nil
}
