// Package coupon implements percentage-discount codes and the validation
// rules applied to them during checkout.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon's expiry date is not
	// strictly in the future.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrCouponAlreadyUsed is returned when a single-use coupon already
	// appears on a prior order of the same user.
	ErrCouponAlreadyUsed = errors.New("coupon has already been used")
)

// MinOrderError rejects a coupon because the subtotal is below its minimum
// order value. The message names the minimum so clients can surface it.
type MinOrderError struct {
	Minimum decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("order total must be at least %s to use this coupon", e.Minimum.String())
}

// Coupon is a percentage-discount code. Codes are stored uppercase; lookup is
// case-insensitive. Coupons are read-only on the pricing path.
type Coupon struct {
	Code            string
	DiscountPercent decimal.Decimal
	Active          bool
	MinOrderValue   *decimal.Decimal
	SingleUse       bool
	ExpiresAt       *time.Time
	Description     string
}

// Applied is the normalized discount descriptor returned by validation.
type Applied struct {
	Code            string
	DiscountPercent decimal.Decimal
	MinOrderValue   decimal.Decimal
}

// Repository provides coupon lookup by code.
type Repository interface {
	// FindByCode returns the coupon for the given code regardless of its
	// active flag, or ErrInvalidCoupon when no such code exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// UsageChecker reports whether a user has already placed an order carrying
// the given coupon code. Implemented by the order repository.
type UsageChecker interface {
	CouponUsed(ctx context.Context, userID, code string) (bool, error)
}
