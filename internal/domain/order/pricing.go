package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/coupon"
	"github.com/rivamart/storefront/internal/domain/settings"
)

var hundred = decimal.NewFromInt(100)

// PricingResult is the transient output of pricing a cart. Reservations are
// staged conditional stock decrements: they are intentionally NOT applied
// during pricing so abandoned checkouts never hold stock. Pricing is
// advisory; the finalize transaction is authoritative.
type PricingResult struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Shipping     decimal.Decimal
	Total        decimal.Decimal
	Coupon       *coupon.Applied
	Reservations []catalog.StockReservation
}

// PricingEngine validates cart lines against current catalog stock, computes
// subtotal/discount/shipping/total, and stages the stock decrements for
// finalize time.
type PricingEngine struct {
	products catalog.Repository
	settings settings.Repository
	coupons  coupon.Validator
}

// NewPricingEngine creates a PricingEngine with the required stores.
func NewPricingEngine(
	products catalog.Repository,
	settings settings.Repository,
	coupons coupon.Validator,
) *PricingEngine {
	return &PricingEngine{
		products: products,
		settings: settings,
		coupons:  coupons,
	}
}

// Prepare prices the given cart for the user. Structural validation happens
// before any store access; stock shortages are collected across all items and
// reported in one aggregate error.
func (e *PricingEngine) Prepare(ctx context.Context, userID string, items []cart.Item, couponCode string) (*PricingResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range items {
		if !item.Valid() {
			return nil, ErrInvalidItem
		}
	}

	shipCfg, err := e.settings.Shipping(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping settings")
	}

	// Batch fetch all referenced products in one query.
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	fetched, err := e.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*catalog.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	var (
		subtotal     = decimal.Zero
		shortages    []string
		reservations = make([]catalog.StockReservation, 0, len(items))
	)
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{Name: item.Name}
		}
		v, ok := p.FindVariant(item.Variant.Color, item.Variant.Size)
		if !ok {
			return nil, &VariantNotFoundError{
				Name:  p.Name,
				Color: item.Variant.Color,
				Size:  item.Variant.Size,
			}
		}
		if v.Stock < item.Quantity {
			shortages = append(shortages, fmt.Sprintf(
				"%s (%s/%s): requested %d, only %d in stock",
				p.Name, v.Color, v.Size, item.Quantity, v.Stock,
			))
			continue
		}

		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		reservations = append(reservations, catalog.StockReservation{
			ProductID: p.ID,
			Color:     v.Color,
			Size:      v.Size,
			Quantity:  item.Quantity,
		})
	}
	if len(shortages) > 0 {
		return nil, &StockShortageError{Details: shortages}
	}

	applied, err := e.coupons.Validate(ctx, couponCode, userID, subtotal)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if applied != nil {
		discount = subtotal.Mul(applied.DiscountPercent).Div(hundred).Round(2)
	}

	// Free shipping only strictly above the threshold.
	shipping := shipCfg.Fee
	if subtotal.Sub(discount).GreaterThan(shipCfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return &PricingResult{
		Subtotal:     subtotal,
		Discount:     discount,
		Shipping:     shipping,
		Total:        subtotal.Sub(discount).Add(shipping),
		Coupon:       applied,
		Reservations: reservations,
	}, nil
}
