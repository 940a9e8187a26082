package service

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrEmptyItems        = errors.New("item list is empty")
	ErrDuplicateItem     = errors.New("duplicate item id in order")
	ErrRegistryNotSet    = errors.New("item registry not configured")
	ErrInvalidSignature  = errors.New("invalid order signature")
	ErrZeroAddress       = errors.New("zero address")
	ErrReentrantCall     = errors.New("reentrant call")
	ErrNotERC721         = errors.New("registry does not support ERC-721")
	ErrInvalidConfig     = errors.New("invalid sale configuration")
	ErrInvalidOrderInput = errors.New("invalid order input")
)

type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d items exceeds cap %d", e.Size, e.Max)
}

type ExpiredError struct {
	ExpiresAt *big.Int
	Now       *big.Int
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("order expired at %s, now %s", e.ExpiresAt, e.Now)
}

type LengthMismatchError struct {
	Recipients int
	Items      int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch: %d recipients, %d items", e.Recipients, e.Items)
}
