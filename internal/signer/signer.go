package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer countersigns orders with the authorized signer key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	codec   *Codec
}

func NewSigner(privateKeyHex string, codec *Codec) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return NewSignerFromKey(key, codec), nil
}

func NewSignerFromKey(key *ecdsa.PrivateKey, codec *Codec) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		codec:   codec,
	}
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest returns the 65-byte [R || S || V] signature with V in {27, 28}.
func (s *Signer) SignDigest(digest common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, err
	}
	if signature[64] < 27 {
		signature[64] += 27
	}
	return signature, nil
}

func (s *Signer) SignPaid(order *PaidOrder) ([]byte, error) {
	return s.SignDigest(s.codec.DigestPaid(order))
}

func (s *Signer) SignFree(order *FreeOrder) ([]byte, error) {
	return s.SignDigest(s.codec.DigestFree(order))
}
