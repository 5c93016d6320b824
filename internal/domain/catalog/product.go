package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product does not exist in the catalog.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry with its sellable variants.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    Image           `json:"image"`
	Variants []Variant       `json:"variants,omitempty"`
}

// Image holds the responsive image set for a product.
type Image struct {
	Thumbnail string `json:"thumbnail"`
	Mobile    string `json:"mobile"`
	Tablet    string `json:"tablet"`
	Desktop   string `json:"desktop"`
}

// Variant is a color/size combination with its own stock counter.
type Variant struct {
	Color string `json:"color"`
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// FindVariant returns the variant matching the given color and size.
func (p *Product) FindVariant(color, size string) (*Variant, bool) {
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Color == color && v.Size == size {
			return v, true
		}
	}
	return nil, false
}

// StockReservation is a single guarded stock decrement to apply when an
// order is finalized.
type StockReservation struct {
	ProductID string
	Color     string
	Size      string
	Quantity  int
}

// Repository provides read access to the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
