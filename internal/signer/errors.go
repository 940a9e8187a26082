package signer

import "errors"

var (
	errInvalidSignatureLength = errors.New("signer: invalid signature length")
	errMalleableSignature     = errors.New("signer: invalid signature values")
)
