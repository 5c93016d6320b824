package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/coupon"
	"github.com/rivamart/storefront/internal/domain/settings"
)

// --- Mock implementations ---

type mockCatalog struct {
	byID map[string]*catalog.Product
	err  error
}

func (m *mockCatalog) List(_ context.Context) ([]catalog.Product, error) { return nil, nil }

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Product
	seen := make(map[string]bool)
	for _, id := range ids {
		if p, ok := m.byID[id]; ok && !seen[id] {
			out = append(out, *p)
			seen[id] = true
		}
	}
	return out, nil
}

type mockSettings struct {
	shipping settings.Shipping
}

func (m *mockSettings) Shipping(_ context.Context) (settings.Shipping, error) {
	return m.shipping, nil
}

type mockCouponValidator struct {
	applied *coupon.Applied
	err     error
}

func (m *mockCouponValidator) Validate(_ context.Context, code, _ string, _ decimal.Decimal) (*coupon.Applied, error) {
	if code == "" {
		return nil, nil
	}
	return m.applied, m.err
}

// --- Helpers ---

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func variantProduct(id, name string, price decimal.Decimal, stock int) *catalog.Product {
	return &catalog.Product{
		ID:    id,
		Name:  name,
		Price: price,
		Variants: []catalog.Variant{
			{Color: "Black", Size: "M", Stock: stock},
		},
	}
}

func line(productID, name string, price decimal.Decimal, qty int) cart.Item {
	return cart.Item{
		ProductID: productID,
		Name:      name,
		Price:     price,
		Variant:   cart.SelectedVariant{Color: "Black", Size: "M"},
		Quantity:  qty,
	}
}

func newEngine(shipping settings.Shipping, cv coupon.Validator, products ...*catalog.Product) *PricingEngine {
	byID := make(map[string]*catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	if cv == nil {
		cv = &mockCouponValidator{}
	}
	return NewPricingEngine(&mockCatalog{byID: byID}, &mockSettings{shipping: shipping}, cv)
}

func defaultShipping() settings.Shipping {
	return settings.Shipping{
		FreeShippingThreshold: decimal.NewFromInt(1499),
		Fee:                   decimal.NewFromInt(200),
	}
}

// --- Tests ---

func TestPrepare_EmptyItems(t *testing.T) {
	e := newEngine(defaultShipping(), nil)

	_, err := e.Prepare(context.Background(), "u1", nil, "")
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPrepare_InvalidItemStructure(t *testing.T) {
	e := newEngine(defaultShipping(), nil, variantProduct("p1", "Tee", d("1000"), 5))

	malformed := []cart.Item{
		// no variant
		{ProductID: "p1", Name: "Tee", Quantity: 1},
		// no product id
		{ProductID: "", Name: "Tee", Quantity: 1},
		// non-positive quantity
		line("p1", "Tee", d("1000"), 0),
		// no name
		{ProductID: "p1", Variant: cart.SelectedVariant{Color: "Black", Size: "M"}, Quantity: 1},
	}
	for _, item := range malformed {
		_, err := e.Prepare(context.Background(), "u1", []cart.Item{item}, "")
		require.ErrorIs(t, err, ErrInvalidItem)
	}
}

func TestPrepare_ProductNotFound(t *testing.T) {
	e := newEngine(defaultShipping(), nil)

	_, err := e.Prepare(context.Background(), "u1", []cart.Item{line("gone", "Ghost Tee", d("500"), 1)}, "")

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Contains(t, pnf.Error(), "Ghost Tee")
}

func TestPrepare_VariantNotFound(t *testing.T) {
	e := newEngine(defaultShipping(), nil, variantProduct("p1", "Tee", d("1000"), 5))

	item := line("p1", "Tee", d("1000"), 1)
	item.Variant.Size = "XXL"

	_, err := e.Prepare(context.Background(), "u1", []cart.Item{item}, "")

	var vnf *VariantNotFoundError
	require.ErrorAs(t, err, &vnf)
	assert.Contains(t, vnf.Error(), "Tee")
	assert.Contains(t, vnf.Error(), "XXL")
}

func TestPrepare_ShortageAggregation(t *testing.T) {
	e := newEngine(defaultShipping(), nil,
		variantProduct("p1", "Tee", d("1000"), 1),
		variantProduct("p2", "Hoodie", d("2000"), 10),
		variantProduct("p3", "Cap", d("300"), 0),
	)

	_, err := e.Prepare(context.Background(), "u1", []cart.Item{
		line("p1", "Tee", d("1000"), 3),
		line("p2", "Hoodie", d("2000"), 1),
		line("p3", "Cap", d("300"), 2),
	}, "")

	var shortage *StockShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Details, 2)
	assert.Contains(t, shortage.Details[0], "Tee")
	assert.Contains(t, shortage.Details[1], "Cap")
}

func TestPrepare_ShippingThresholdBoundary(t *testing.T) {
	// Threshold 1499: exactly 1499 pays the fee (strict >), 1500 ships free.
	e := newEngine(defaultShipping(), nil,
		variantProduct("p1", "Tee", d("1499"), 10),
		variantProduct("p2", "Hoodie", d("1500"), 10),
	)

	atThreshold, err := e.Prepare(context.Background(), "u1", []cart.Item{line("p1", "Tee", d("1499"), 1)}, "")
	require.NoError(t, err)
	assert.True(t, d("200").Equal(atThreshold.Shipping))
	assert.True(t, d("1699").Equal(atThreshold.Total))

	aboveThreshold, err := e.Prepare(context.Background(), "u1", []cart.Item{line("p2", "Hoodie", d("1500"), 1)}, "")
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(aboveThreshold.Shipping))
	assert.True(t, d("1500").Equal(aboveThreshold.Total))
}

func TestPrepare_DiscountAppliedBeforeShipping(t *testing.T) {
	// Subtotal 2000, 30% off -> 1400 discounted, below the 1499 threshold,
	// so the flat fee applies.
	cv := &mockCouponValidator{applied: &coupon.Applied{Code: "THIRTY", DiscountPercent: d("30")}}
	e := newEngine(defaultShipping(), cv, variantProduct("p1", "Tee", d("1000"), 10))

	pr, err := e.Prepare(context.Background(), "u1", []cart.Item{line("p1", "Tee", d("1000"), 2)}, "THIRTY")
	require.NoError(t, err)

	assert.True(t, d("2000").Equal(pr.Subtotal))
	assert.True(t, d("600").Equal(pr.Discount))
	assert.True(t, d("200").Equal(pr.Shipping))
	assert.True(t, d("1600").Equal(pr.Total))
	require.NotNil(t, pr.Coupon)
	assert.Equal(t, "THIRTY", pr.Coupon.Code)
}

func TestPrepare_CouponErrorPropagates(t *testing.T) {
	cv := &mockCouponValidator{err: coupon.ErrInvalidCoupon}
	e := newEngine(defaultShipping(), cv, variantProduct("p1", "Tee", d("1000"), 10))

	_, err := e.Prepare(context.Background(), "u1", []cart.Item{line("p1", "Tee", d("1000"), 1)}, "BOGUS")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

func TestPrepare_EndToEndScenario(t *testing.T) {
	// Cart: 2x P1 at 1000, stock 5, no coupon, threshold 1499 / fee 200.
	e := newEngine(defaultShipping(), nil, variantProduct("P1", "Tee", d("1000"), 5))

	pr, err := e.Prepare(context.Background(), "u1", []cart.Item{line("P1", "Tee", d("1000"), 2)}, "")
	require.NoError(t, err)

	assert.True(t, d("2000").Equal(pr.Subtotal))
	assert.True(t, decimal.Zero.Equal(pr.Discount))
	assert.True(t, decimal.Zero.Equal(pr.Shipping))
	assert.True(t, d("2000").Equal(pr.Total))

	require.Len(t, pr.Reservations, 1)
	assert.Equal(t, catalog.StockReservation{
		ProductID: "P1",
		Color:     "Black",
		Size:      "M",
		Quantity:  2,
	}, pr.Reservations[0])
}

func TestPrepare_Idempotent(t *testing.T) {
	e := newEngine(defaultShipping(), nil, variantProduct("p1", "Tee", d("999.50"), 5))
	items := []cart.Item{line("p1", "Tee", d("999.50"), 2)}

	first, err := e.Prepare(context.Background(), "u1", items, "")
	require.NoError(t, err)
	second, err := e.Prepare(context.Background(), "u1", items, "")
	require.NoError(t, err)

	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.Discount.Equal(second.Discount))
	assert.True(t, first.Shipping.Equal(second.Shipping))
	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, first.Reservations, second.Reservations)
}

func TestPrepare_PriceSnapshotUsed(t *testing.T) {
	// The cart's snapshot price is priced, not the current catalog price.
	e := newEngine(defaultShipping(), nil, variantProduct("p1", "Tee", d("1200"), 5))

	pr, err := e.Prepare(context.Background(), "u1", []cart.Item{line("p1", "Tee", d("1000"), 1)}, "")
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(pr.Subtotal))
}
