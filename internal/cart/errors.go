package cart

import (
	"errors"
	"net/http"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

var (
	ErrMissingIdentity    = errors.New("cart: user or session identity required")
	ErrCartNotFound       = errors.New("cart: not found")
	ErrItemNotFound       = errors.New("cart: item not found")
	ErrProductUnavailable = errors.New("cart: product unavailable")
	ErrOutOfStock         = errors.New("cart: insufficient stock")
	ErrInvalidQuantity    = errors.New("cart: quantity must be at least 1")
	ErrEmptyCart          = errors.New("cart: cart has no items")
)

func missingIdentity() error {
	return common.NewAppError(common.CodeMissingIdentity, "user id or session id is required", http.StatusBadRequest, ErrMissingIdentity)
}

func cartNotFound() error {
	return common.NewAppError(common.CodeCartNotFound, "cart not found", http.StatusNotFound, ErrCartNotFound)
}

func itemNotFound() error {
	return common.NewAppError(common.CodeItemNotFound, "product is not in the cart", http.StatusNotFound, ErrItemNotFound)
}

func productUnavailable() error {
	return common.NewAppError(common.CodeProductUnavail, "product is not available", http.StatusUnprocessableEntity, ErrProductUnavailable)
}

func outOfStock(available int32, requested int64) error {
	return common.NewAppError(common.CodeOutOfStock, "not enough stock", http.StatusConflict, ErrOutOfStock).
		WithDetails(map[string]any{"available": available, "requested": requested})
}

// MaxLineQuantity caps a single line so money columns cannot overflow.
const MaxLineQuantity = 10000

func invalidQuantity() error {
	return common.NewAppError(common.CodeInvalidQuantity, "quantity must be between 1 and 10000", http.StatusBadRequest, ErrInvalidQuantity)
}

func emptyCart() error {
	return common.NewAppError(common.CodeEmptyCart, "cannot apply a voucher to an empty cart", http.StatusUnprocessableEntity, ErrEmptyCart)
}

var voucherMessages = map[string]string{
	"INVALID_CODE":               "voucher code is invalid",
	"NOT_YET_ACTIVE":             "voucher is not active yet",
	"EXPIRED":                    "voucher has expired",
	"LIMIT_REACHED":              "voucher usage limit reached",
	"PER_CUSTOMER_LIMIT_REACHED": "voucher already used the maximum number of times",
	"BELOW_MINIMUM":              "cart subtotal is below the voucher minimum",
}

// voucherRejected wraps a voucher eligibility error as a 422 carrying the reason code.
func voucherRejected(err error) error {
	reason := voucher.Reason(err)
	return common.NewAppError(reason, voucherMessages[reason], http.StatusUnprocessableEntity, err)
}
