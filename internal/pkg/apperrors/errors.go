package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAuthFailed       ErrorType = "AUTH_FAILED"
	ErrForbidden        ErrorType = "FORBIDDEN"
	ErrReplayed         ErrorType = "REPLAYED"
	ErrExpired          ErrorType = "EXPIRED"
	ErrSettlementFailed ErrorType = "SETTLEMENT_FAILED"
	ErrConfig           ErrorType = "CONFIG_ERROR"
	ErrReadOnly         ErrorType = "READ_ONLY"
	ErrRateLimited      ErrorType = "RATE_LIMITED"
	ErrInvalidRequest   ErrorType = "INVALID_REQUEST"
	ErrInternal         ErrorType = "INTERNAL_ERROR"
	ErrNotFound         ErrorType = "NOT_FOUND"
	ErrUpstream         ErrorType = "UPSTREAM_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Cause      error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetail attaches an offending value to the response body.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrReplayed:
		return http.StatusConflict
	case ErrExpired:
		return http.StatusGone
	case ErrSettlementFailed:
		return http.StatusUnprocessableEntity
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrReadOnly, ErrConfig:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrReplayed:
		return "Request a new order id from the signer."
	case ErrExpired:
		return "Request a fresh signed order."
	case ErrSettlementFailed:
		return "Check payment amount, allowance and minimum revenue, then retry with a new quote."
	case ErrAuthFailed:
		return "Check API keys and signatures."
	case ErrRateLimited:
		return "Slow down and retry later."
	case ErrReadOnly:
		return "Wait for maintenance to end."
	default:
		return ""
	}
}
