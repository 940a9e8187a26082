package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
)

const isValidSignatureABI = `[{"constant":true,"inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"payable":false,"stateMutability":"view","type":"function"}]`

// EIP1271Verifier answers the signature verifier's contract probes against a
// live chain: code presence through eth_getCode and contract signatures
// through isValidSignature. Results are cached per (address, digest, sig).
type EIP1271Verifier struct {
	rpcURL   string
	abi      abi.ABI
	mu       sync.Mutex
	client   *ethclient.Client
	cacheTTL time.Duration
	cache    map[string]cacheEntry
	codeSeen map[common.Address]cacheEntry
	timeout  time.Duration
	retries  int
}

type cacheEntry struct {
	valid   bool
	expires time.Time
}

func NewEIP1271Verifier(rpcURL string, ttl time.Duration, timeout time.Duration, retries int) (*EIP1271Verifier, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	parsed, err := abi.JSON(strings.NewReader(isValidSignatureABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &EIP1271Verifier{
		rpcURL:   strings.TrimSpace(rpcURL),
		abi:      parsed,
		cacheTTL: ttl,
		cache:    make(map[string]cacheEntry),
		codeSeen: make(map[common.Address]cacheEntry),
		timeout:  timeout,
		retries:  retries,
	}, nil
}

func (v *EIP1271Verifier) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	v.mu.Lock()
	entry, ok := v.codeSeen[addr]
	v.mu.Unlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.valid, nil
	}

	var code []byte
	err := v.withRetry(ctx, func(callCtx context.Context, client *ethclient.Client) error {
		var err error
		code, err = client.CodeAt(callCtx, addr, nil)
		return err
	})
	if err != nil {
		return false, err
	}
	has := len(code) > 0
	v.mu.Lock()
	v.codeSeen[addr] = cacheEntry{valid: has, expires: time.Now().Add(v.cacheTTL)}
	v.mu.Unlock()
	return has, nil
}

func (v *EIP1271Verifier) IsValidSignature(ctx context.Context, contract common.Address, digest common.Hash, signature []byte) (bool, error) {
	cacheKey := v.cacheKey(contract, digest, signature)
	if hit, ok := v.cacheGet(cacheKey); ok {
		return hit, nil
	}
	data, err := v.abi.Pack("isValidSignature", [32]byte(digest), signature)
	if err != nil {
		return false, fmt.Errorf("failed to pack call data: %w", err)
	}

	var output []byte
	err = v.withRetry(ctx, func(callCtx context.Context, client *ethclient.Client) error {
		var err error
		output, err = client.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		return err
	})
	if err != nil {
		return false, err
	}
	valid := len(output) >= 4 && bytes.Equal(output[:4], chain.EIP1271MagicValue[:])
	v.cacheSet(cacheKey, valid)
	return valid, nil
}

// withRetry runs a read with the configured per-attempt timeout and bounded retries.
func (v *EIP1271Verifier) withRetry(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	var lastErr error
	for attempt := 0; attempt <= v.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
		client, err := v.getClient(attemptCtx)
		if err == nil {
			err = fn(attemptCtx, client)
			if err != nil {
				err = fmt.Errorf("rpc call failed: %w", err)
			}
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(ctx, attempt, v.retries) {
			break
		}
	}
	return lastErr
}

func (v *EIP1271Verifier) getClient(ctx context.Context) (*ethclient.Client, error) {
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

func (v *EIP1271Verifier) cacheKey(contract common.Address, digest common.Hash, signature []byte) string {
	return strings.ToLower(contract.Hex()) + ":" + digest.Hex() + ":" + hexutil.Encode(signature)
}

func (v *EIP1271Verifier) cacheGet(key string) (bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[key]
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expires) {
		delete(v.cache, key)
		return false, false
	}
	return entry.valid, true
}

func (v *EIP1271Verifier) cacheSet(key string, valid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[key] = cacheEntry{
		valid:   valid,
		expires: time.Now().Add(v.cacheTTL),
	}
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}
	time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	return true
}
