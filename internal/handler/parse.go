package handler

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// parseUint accepts a decimal integer or a 0x-prefixed hex quantity.
func parseUint(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw, base = raw[2:], 16
	}
	v, ok := new(big.Int).SetString(raw, base)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("%s must be an unsigned 256-bit integer", field)
	}
	return v, nil
}

// parseOptionalUint treats an empty value as zero.
func parseOptionalUint(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return new(big.Int), nil
	}
	return parseUint(field, raw)
}

func parseUintList(field string, raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(raw))
	for i, r := range raw {
		v, err := parseUint(fmt.Sprintf("%s[%d]", field, i), r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s is not a hex address", field)
	}
	return common.HexToAddress(raw), nil
}

// parseAsset maps an empty payment asset to the native sentinel.
func parseAsset(raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return chain.NativeAsset, nil
	}
	return parseAddress("payment_asset", raw)
}

func parseAddressList(field string, raw []string) ([]common.Address, error) {
	out := make([]common.Address, len(raw))
	for i, r := range raw {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), r)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func parseSignature(raw string) ([]byte, error) {
	sig, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	return sig, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
