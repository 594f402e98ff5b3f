package common

import (
	"errors"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeInternal          = "INTERNAL"
	CodeMissingIdentity   = "MISSING_IDENTITY"
	CodeCartNotFound      = "CART_NOT_FOUND"
	CodeEmptyCart         = "EMPTY_CART"
	CodeItemNotFound      = "ITEM_NOT_FOUND"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeProductUnavail    = "PRODUCT_UNAVAILABLE"
	CodeOutOfStock        = "OUT_OF_STOCK"
	CodeIdempotentReplay  = "IDEMPOTENT_REPLAY"
	CodeRateLimited       = "RATE_LIMITED"
	CodeLockNotAcquired   = "MERGE_IN_PROGRESS"
	CodeValidationFailure = "VALIDATION_FAILED"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails attaches a details payload and returns the same error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// BadRequest wraps err as a 400 with the generic BAD_REQUEST code.
func BadRequest(message string, err error) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest, err)
}
