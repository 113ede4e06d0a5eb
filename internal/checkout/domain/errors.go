package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrEmptyCart            = errors.New("cart must contain at least one item")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrUnknownPaymentMethod = errors.New("unsupported payment method")
	ErrAddressNotOwned      = errors.New("address does not belong to user")
	ErrUnknownCoupon        = errors.New("unknown coupon code")
	ErrCouponNotActive      = errors.New("coupon is not active")
	ErrCouponAlreadyUsed    = errors.New("coupon already redeemed by this user")
)

// IsValidation reports whether err is a bad-request condition that was
// rejected before any mutation.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyCart,
		ErrInvalidQuantity,
		ErrUnknownPaymentMethod,
		ErrAddressNotOwned,
		ErrUnknownCoupon,
		ErrCouponNotActive,
		ErrCouponAlreadyUsed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// GatewayError wraps a payment-provider failure during intent creation. The
// checkout transaction is rolled back whole, so retrying is safe.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
