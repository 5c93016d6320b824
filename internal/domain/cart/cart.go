// Package cart implements the ephemeral per-user shopping cart and its live
// stock validation. Carts live in a cache store, not the relational database:
// checkout consumes them, nothing else depends on their durability.
package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// SelectedVariant identifies the (color, size) combination a line item refers to.
type SelectedVariant struct {
	Color string `json:"color"`
	Size  string `json:"size"`
}

// Item is one cart line. Price is snapshotted at add time; a line is unique
// per (productID, color, size) and duplicates merge by summing quantity.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Variant   SelectedVariant `json:"variant"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Valid reports whether the item is structurally complete. It guards the
// pricing path against malformed input before any store access.
func (i Item) Valid() bool {
	return i.ProductID != "" &&
		i.Name != "" &&
		i.Quantity > 0 &&
		i.Variant.Color != "" &&
		i.Variant.Size != "" &&
		!i.Price.IsNegative()
}

// Repository stores one cart per user.
type Repository interface {
	Get(ctx context.Context, userID string) ([]Item, error)
	Save(ctx context.Context, userID string, items []Item) error
	Clear(ctx context.Context, userID string) error
}
