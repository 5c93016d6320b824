package settings

import (
	"context"

	"github.com/shopspring/decimal"
)

// Shipping holds the storefront shipping configuration.
type Shipping struct {
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	Fee                   decimal.Decimal `json:"shippingFee"`
}

// DefaultShipping returns the configuration used when no shipping entry has
// been stored yet.
func DefaultShipping() Shipping {
	return Shipping{
		FreeShippingThreshold: decimal.NewFromInt(1500),
		Fee:                   decimal.NewFromInt(200),
	}
}

// Repository provides access to stored site settings.
type Repository interface {
	Shipping(ctx context.Context) (Shipping, error)
}
