package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a coupon code against a computed subtotal on behalf of
// a user and returns the normalized discount descriptor. An empty code yields
// (nil, nil): no discount, not an error.
type Validator interface {
	Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Applied, error)
}

// RepoValidator implements Validator against a coupon Repository and an order
// UsageChecker for single-use enforcement.
type RepoValidator struct {
	repo  Repository
	usage UsageChecker
	now   func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given stores.
func NewRepoValidator(repo Repository, usage UsageChecker) *RepoValidator {
	return &RepoValidator{repo: repo, usage: usage, now: time.Now}
}

// Validate applies the coupon rules in order: lookup (case-insensitive),
// active flag, expiry strictly in the future, minimum order value, and
// single-use history for the given user.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Applied, error) {
	if code == "" {
		return nil, nil
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.Active {
		return nil, ErrInvalidCoupon
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(v.now()) {
		return nil, ErrCouponExpired
	}
	if c.MinOrderValue != nil && subtotal.LessThan(*c.MinOrderValue) {
		return nil, &MinOrderError{Minimum: *c.MinOrderValue}
	}
	if c.SingleUse {
		used, err := v.usage.CouponUsed(ctx, userID, c.Code)
		if err != nil {
			return nil, errors.Wrap(err, "check coupon usage")
		}
		if used {
			return nil, ErrCouponAlreadyUsed
		}
	}

	applied := &Applied{
		Code:            c.Code,
		DiscountPercent: c.DiscountPercent,
	}
	if c.MinOrderValue != nil {
		applied.MinOrderValue = *c.MinOrderValue
	}
	return applied, nil
}
