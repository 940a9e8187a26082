package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractChecker resolves contract-wallet signers (EIP-1271).
type ContractChecker interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
	IsValidSignature(ctx context.Context, addr common.Address, digest common.Hash, signature []byte) (bool, error)
}

// Verifier checks a detached signature against an expected signer. Signers
// with code are asked through EIP-1271, everything else goes through ECDSA
// recovery.
type Verifier struct {
	contracts ContractChecker
}

func NewVerifier(contracts ContractChecker) *Verifier {
	return &Verifier{contracts: contracts}
}

// Verify never errors: every failure, including an unset signer, is false.
func (v *Verifier) Verify(ctx context.Context, digest common.Hash, signature []byte, expected common.Address) bool {
	if expected == (common.Address{}) || len(signature) == 0 {
		return false
	}
	if v.contracts != nil {
		hasCode, err := v.contracts.HasCode(ctx, expected)
		if err != nil {
			return false
		}
		if hasCode {
			ok, err := v.contracts.IsValidSignature(ctx, expected, digest, signature)
			return err == nil && ok
		}
	}
	recovered, err := Recover(digest, signature)
	if err != nil {
		return false
	}
	return recovered == expected
}

// Recover returns the address that produced a 65-byte [R || S || V] signature.
// V may be 0/1 or 27/28; high-s signatures are rejected.
func Recover(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, errInvalidSignatureLength
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	// Normalize V to 0/1 for recovery.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, errMalleableSignature
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
