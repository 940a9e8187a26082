package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// TypedDomain returns the EIP-712 domain wallets are asked to sign under.
func (c *Codec) TypedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainId:           (*math.HexOrDecimal256)(c.ChainID()),
		VerifyingContract: c.engine.Hex(),
	}
}

// BuildPaidTypedData renders a PaidOrder as eth_signTypedData_v4 payload.
func (c *Codec) BuildPaidTypedData(order *PaidOrder) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			"PaidOrder": {
				{Name: "orderId", Type: "uint256"},
				{Name: "buyer", Type: "address"},
				{Name: "itemIds", Type: "uint256[]"},
				{Name: "paymentAsset", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "minRevenue", Type: "uint256"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
		PrimaryType: "PaidOrder",
		Domain:      c.TypedDomain(),
		Message: apitypes.TypedDataMessage{
			"orderId":      hexOrDecimal(order.OrderID),
			"buyer":        order.Buyer.Hex(),
			"itemIds":      itemList(order.ItemIDs),
			"paymentAsset": order.PaymentAsset.Hex(),
			"amount":       hexOrDecimal(order.Amount),
			"minRevenue":   hexOrDecimal(order.MinRevenue),
			"expiresAt":    hexOrDecimal(order.ExpiresAt),
		},
	}
}

func (c *Codec) BuildFreeTypedData(order *FreeOrder) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			"FreeOrder": {
				{Name: "orderId", Type: "uint256"},
				{Name: "buyer", Type: "address"},
				{Name: "itemIds", Type: "uint256[]"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
		PrimaryType: "FreeOrder",
		Domain:      c.TypedDomain(),
		Message: apitypes.TypedDataMessage{
			"orderId":   hexOrDecimal(order.OrderID),
			"buyer":     order.Buyer.Hex(),
			"itemIds":   itemList(order.ItemIDs),
			"expiresAt": hexOrDecimal(order.ExpiresAt),
		},
	}
}

func hexOrDecimal(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		return (*math.HexOrDecimal256)(new(big.Int))
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

func itemList(ids []*big.Int) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = hexOrDecimal(id)
	}
	return out
}
