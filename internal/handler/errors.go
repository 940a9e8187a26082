package handler

import (
	"errors"
	"strconv"

	"github.com/GoPolymarket/itemsale/internal/chain"
	"github.com/GoPolymarket/itemsale/internal/distribution"
	"github.com/GoPolymarket/itemsale/internal/ownership"
	"github.com/GoPolymarket/itemsale/internal/payment"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/registry"
	"github.com/GoPolymarket/itemsale/internal/replay"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/GoPolymarket/itemsale/internal/venue"
)

// toAppError maps settlement failures onto API error codes.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		expired   *service.ExpiredError
		batch     *service.BatchTooLargeError
		lengths   *service.LengthMismatchError
		mismatch  *payment.AmountMismatchError
		short     *payment.InsufficientPaymentError
		revenue   *distribution.InsufficientRevenueError
		output    *venue.InsufficientOutputError
		invariant *venue.SwapInvariantViolationError
	)

	switch {
	case errors.Is(err, replay.ErrAlreadyUsed):
		return apperrors.New(apperrors.ErrReplayed, "order already used", err)
	case errors.Is(err, service.ErrReentrantCall):
		return apperrors.New(apperrors.ErrReplayed, "settlement already in progress", err)
	case errors.As(err, &expired):
		return apperrors.New(apperrors.ErrExpired, "order expired", err).
			WithDetail("expires_at", expired.ExpiresAt.String()).
			WithDetail("now", expired.Now.String())

	case errors.Is(err, service.ErrInvalidSignature):
		return apperrors.New(apperrors.ErrForbidden, "invalid order signature", err)
	case errors.Is(err, ownership.ErrNotOwner),
		errors.Is(err, ownership.ErrNotPendingOwner),
		errors.Is(err, ownership.ErrRenounceDisabled):
		return apperrors.New(apperrors.ErrForbidden, err.Error(), err)

	case errors.As(err, &batch):
		return apperrors.New(apperrors.ErrInvalidRequest, "batch too large", err).
			WithDetail("size", strconv.Itoa(batch.Size)).
			WithDetail("max", strconv.Itoa(batch.Max))
	case errors.As(err, &lengths):
		return apperrors.New(apperrors.ErrInvalidRequest, "recipients and items differ in length", err).
			WithDetail("recipients", strconv.Itoa(lengths.Recipients)).
			WithDetail("items", strconv.Itoa(lengths.Items))
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrDuplicateItem),
		errors.Is(err, service.ErrInvalidOrderInput),
		errors.Is(err, service.ErrZeroAddress),
		errors.Is(err, service.ErrNotERC721),
		errors.Is(err, payment.ErrUnsupportedAsset),
		errors.Is(err, registry.ErrZeroRecipient),
		errors.Is(err, registry.ErrUnknownRegistry):
		return apperrors.New(apperrors.ErrInvalidRequest, err.Error(), err)

	case errors.As(err, &mismatch):
		return apperrors.New(apperrors.ErrSettlementFailed, "payment amount mismatch", err).
			WithDetail("expected", mismatch.Expected.String()).
			WithDetail("actual", mismatch.Actual.String())
	case errors.As(err, &short):
		return apperrors.New(apperrors.ErrSettlementFailed, "insufficient payment", err).
			WithDetail("required", short.Required.String()).
			WithDetail("paid", short.Paid.String())
	case errors.As(err, &revenue):
		return apperrors.New(apperrors.ErrSettlementFailed, "revenue below minimum", err).
			WithDetail("min", revenue.MinRequired.String()).
			WithDetail("actual", revenue.Actual.String())
	case errors.As(err, &output):
		return apperrors.New(apperrors.ErrSettlementFailed, "swap output below minimum", err)
	case errors.Is(err, venue.ErrSwapLimitExceeded),
		errors.Is(err, chain.ErrInsufficientBalance),
		errors.Is(err, chain.ErrInsufficientAllowance),
		errors.Is(err, registry.ErrItemExists),
		errors.Is(err, distribution.ErrInsufficientLiquidityReceived):
		return apperrors.New(apperrors.ErrSettlementFailed, err.Error(), err)

	case errors.Is(err, service.ErrRegistryNotSet):
		return apperrors.New(apperrors.ErrConfig, "item registry not configured", err)
	case errors.As(err, &invariant),
		errors.Is(err, registry.ErrMissingCapability),
		errors.Is(err, venue.ErrPoolNotRegistered),
		errors.Is(err, venue.ErrInsufficientLiquidity):
		return apperrors.New(apperrors.ErrUpstream, err.Error(), err)
	}
	return apperrors.Wrap(err)
}
