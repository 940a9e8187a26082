package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Codec computes domain-separated order digests for one engine deployment.
type Codec struct {
	chainID         *big.Int
	engine          common.Address
	domainSeparator common.Hash
}

func NewCodec(chainID int64, engine common.Address) *Codec {
	// keccak256(abi.encode(EIP712DomainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
	domainData := make([]byte, 32*5)
	copy(domainData[0:32], EIP712DomainTypeHash.Bytes())
	copy(domainData[32:64], crypto.Keccak256([]byte(EIP712DomainName)))
	copy(domainData[64:96], crypto.Keccak256([]byte(EIP712DomainVersion)))
	copy(domainData[96:128], math.U256Bytes(big.NewInt(chainID)))
	copy(domainData[128+12:160], engine.Bytes())

	return &Codec{
		chainID:         big.NewInt(chainID),
		engine:          engine,
		domainSeparator: crypto.Keccak256Hash(domainData),
	}
}

func (c *Codec) ChainID() *big.Int            { return new(big.Int).Set(c.chainID) }
func (c *Codec) Engine() common.Address       { return c.engine }
func (c *Codec) DomainSeparator() common.Hash { return c.domainSeparator }

// DigestPaid returns keccak256("\x19\x01" || domainSeparator || hashStruct(order)).
func (c *Codec) DigestPaid(order *PaidOrder) common.Hash {
	// typeHash + 7 fields
	data := make([]byte, 32*8)
	copy(data[0:32], PaidOrderTypeHash.Bytes())
	putUint(data[32:64], order.OrderID)
	copy(data[64+12:96], order.Buyer.Bytes())
	copy(data[96:128], hashItemIDs(order.ItemIDs))
	copy(data[128+12:160], order.PaymentAsset.Bytes())
	putUint(data[160:192], order.Amount)
	putUint(data[192:224], order.MinRevenue)
	putUint(data[224:256], order.ExpiresAt)
	return c.digest(crypto.Keccak256(data))
}

// DigestFree is the FreeOrder analogue of DigestPaid.
func (c *Codec) DigestFree(order *FreeOrder) common.Hash {
	data := make([]byte, 32*5)
	copy(data[0:32], FreeOrderTypeHash.Bytes())
	putUint(data[32:64], order.OrderID)
	copy(data[64+12:96], order.Buyer.Bytes())
	copy(data[96:128], hashItemIDs(order.ItemIDs))
	putUint(data[128:160], order.ExpiresAt)
	return c.digest(crypto.Keccak256(data))
}

func (c *Codec) digest(hashStruct []byte) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, c.domainSeparator.Bytes(), hashStruct)
}

// hashItemIDs encodes uint256[] as keccak256 of the concatenated words, so
// sequences of different length or order never collide.
func hashItemIDs(ids []*big.Int) []byte {
	buf := make([]byte, 32*len(ids))
	for i, id := range ids {
		putUint(buf[i*32:(i+1)*32], id)
	}
	return crypto.Keccak256(buf)
}

func putUint(dst []byte, v *big.Int) {
	if v != nil {
		copy(dst, math.U256Bytes(new(big.Int).Set(v)))
	}
}
