package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Constants for EIP-712
const (
	EIP712DomainName    = "ItemSale"
	EIP712DomainVersion = "1"

	PaidOrderType = "PaidOrder(uint256 orderId,address buyer,uint256[] itemIds,address paymentAsset,uint256 amount,uint256 minRevenue,uint256 expiresAt)"
	FreeOrderType = "FreeOrder(uint256 orderId,address buyer,uint256[] itemIds,uint256 expiresAt)"
)

var (
	// EIP712DomainTypeHash is the keccak256 hash of the EIP712Domain type definition
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	PaidOrderTypeHash = crypto.Keccak256Hash([]byte(PaidOrderType))
	FreeOrderTypeHash = crypto.Keccak256Hash([]byte(FreeOrderType))
)

// PaidOrder is the server-countersigned purchase of ItemIDs paid in PaymentAsset.
// Amount already includes the buyer's accepted slippage.
type PaidOrder struct {
	OrderID      *big.Int
	Buyer        common.Address
	ItemIDs      []*big.Int
	PaymentAsset common.Address
	Amount       *big.Int
	MinRevenue   *big.Int
	ExpiresAt    *big.Int
}

// FreeOrder grants ItemIDs without payment. It shares the order id space with PaidOrder.
type FreeOrder struct {
	OrderID   *big.Int
	Buyer     common.Address
	ItemIDs   []*big.Int
	ExpiresAt *big.Int
}
