package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rivamart/storefront/internal/domain/coupon"
)

const getCouponByCodeSQL = `SELECT code, discount_percent, active, min_order_value, single_use, expires_at, description
	FROM coupons WHERE UPPER(code) = UPPER($1)`

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive). The active
// flag is returned as stored; the validator decides what to do with it.
// Returns coupon.ErrInvalidCoupon when no such code exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c             coupon.Coupon
		discount      decimal.Decimal
		minOrderValue *decimal.Decimal
		expiresAt     *time.Time
	)
	err := row.Scan(
		&c.Code, &discount, &c.Active, &minOrderValue, &c.SingleUse, &expiresAt, &c.Description,
	)
	c.DiscountPercent = discount
	c.MinOrderValue = minOrderValue
	c.ExpiresAt = expiresAt
	return c, err
}
