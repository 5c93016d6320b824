package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/coupon"
	"github.com/rivamart/storefront/internal/domain/order"
	"github.com/rivamart/storefront/internal/domain/settings"
	"github.com/rivamart/storefront/internal/payment"
)

// --- Mock implementations ---

type mockCatalog struct {
	products []catalog.Product
	err      error
}

func (m *mockCatalog) List(context.Context) ([]catalog.Product, error) {
	return m.products, m.err
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Product
	for _, id := range ids {
		for i := range m.products {
			if m.products[i].ID == id {
				out = append(out, m.products[i])
			}
		}
	}
	return out, nil
}

type mockSettings struct{}

func (mockSettings) Shipping(context.Context) (settings.Shipping, error) {
	return settings.DefaultShipping(), nil
}

type mockCouponRepo struct {
	coupons map[string]*coupon.Coupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

type mockOrderRepo struct {
	finalized []*order.Order
	trackings map[string]*order.Tracking
	byID      map[string]*order.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		trackings: make(map[string]*order.Tracking),
		byID:      make(map[string]*order.Order),
	}
}

func (m *mockOrderRepo) Finalize(_ context.Context, o *order.Order, t *order.Tracking, _ []catalog.StockReservation) error {
	m.finalized = append(m.finalized, o)
	m.byID[o.ID] = o
	m.trackings[o.ID] = t
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.finalized {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) TrackingByNumber(_ context.Context, number string) (*order.Tracking, error) {
	for _, t := range m.trackings {
		if t.TrackingNumber == number {
			return t, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) AppendTrackingEvent(_ context.Context, orderID string, event order.TrackingEvent, status order.Status) (*order.Tracking, error) {
	t, ok := m.trackings[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	t.Events = append(t.Events, event)
	t.CurrentStatus = event.Status
	m.byID[orderID].Status = status
	return t, nil
}

func (m *mockOrderRepo) CouponUsed(_ context.Context, userID, code string) (bool, error) {
	for _, o := range m.finalized {
		if o.UserID == userID && o.CouponCode == code {
			return true, nil
		}
	}
	return false, nil
}

type mockCartStore struct {
	items map[string][]cart.Item
}

func (m *mockCartStore) Get(_ context.Context, userID string) ([]cart.Item, error) {
	return m.items[userID], nil
}

func (m *mockCartStore) Save(_ context.Context, userID string, items []cart.Item) error {
	if m.items == nil {
		m.items = make(map[string][]cart.Item)
	}
	m.items[userID] = items
	return nil
}

func (m *mockCartStore) Clear(_ context.Context, userID string) error {
	delete(m.items, userID)
	return nil
}

type mockGateway struct {
	lastAmount decimal.Decimal
	err        error
}

func (m *mockGateway) CreateOrder(_ context.Context, amount decimal.Decimal, currency, receipt string) (*payment.GatewayOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastAmount = amount
	return &payment.GatewayOrder{
		ID:       "gw_123",
		Amount:   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

// --- Fixture ---

const testJWTSecret = "test-secret"

type fixture struct {
	router   http.Handler
	products *mockCatalog
	coupons  *mockCouponRepo
	orders   *mockOrderRepo
	carts    *mockCartStore
	gateway  *mockGateway
	verifier *payment.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &mockCatalog{products: []catalog.Product{
		testProduct("p1", "Tee", 1000, catalog.Variant{Color: "Black", Size: "M", Stock: 5}),
		testProduct("p2", "Cap", 500, catalog.Variant{Color: "Red", Size: "OS", Stock: 2}),
	}}
	coupons := &mockCouponRepo{coupons: map[string]*coupon.Coupon{
		"SAVE10": {
			Code:            "SAVE10",
			DiscountPercent: decimal.NewFromInt(10),
			Active:          true,
			Description:     "10% off",
		},
	}}
	orders := newMockOrderRepo()
	carts := &mockCartStore{items: make(map[string][]cart.Item)}
	gateway := &mockGateway{}
	verifier := payment.NewVerifier([]byte("webhook-secret"))

	validator := coupon.NewRepoValidator(coupons, orders)
	engine := order.NewPricingEngine(products, mockSettings{}, validator)
	orderSvc := order.NewService(engine, orders, carts, nil)
	cartSvc := cart.NewService(carts, products)

	h := NewHandler(
		Config{MaxPayableAmount: decimal.NewFromInt(100000), Currency: "USD"},
		cartSvc, products, coupons, validator, orderSvc, orders, gateway, verifier,
	)

	return &fixture{
		router:   h.Routes(NewAuth([]byte(testJWTSecret))),
		products: products,
		coupons:  coupons,
		orders:   orders,
		carts:    carts,
		gateway:  gateway,
		verifier: verifier,
	}
}

func testProduct(id, name string, price int64, variants ...catalog.Variant) catalog.Product {
	return catalog.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Category: "apparel",
		Variants: variants,
	}
}

func testItem(p catalog.Product, qty int) cart.Item {
	return cart.Item{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Variant:   cart.SelectedVariant{Color: p.Variants[0].Color, Size: p.Variants[0].Size},
		Quantity:  qty,
	}
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- Products ---

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[[]productResponse](t, rec)
	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].ID)
	assert.Equal(t, 1000.0, out[0].Price)
	require.Len(t, out[0].Variants, 1)
	assert.Equal(t, 5, out[0].Variants[0].Stock)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/products/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	out := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "product not found", out.Error)
}

// --- Auth ---

func TestCart_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/cart", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/cart", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/admin/orders/o1/tracking", signToken(t, "u1", ""),
		map[string]string{"status": "shipped"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Cart ---

func TestAddCartItem(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/cart/items", token, testItem(f.products.products[0], 2))
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[cartResponse](t, rec)
	require.Len(t, out.Items, 1)
	assert.Equal(t, 2, out.Items[0].Quantity)
}

func TestAddCartItem_OverStock(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/cart/items", token, testItem(f.products.products[1], 3))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.carts.items["u1"])
}

func TestValidateStock_Public(t *testing.T) {
	f := newFixture(t)

	body := validateStockRequest{Items: []cart.Item{
		testItem(f.products.products[0], 2),
		testItem(f.products.products[1], 3),
	}}
	rec := f.do(t, http.MethodPost, "/cart/validate-stock", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[cart.ValidationResult](t, rec)
	assert.False(t, out.Valid)
	require.Len(t, out.StockIssues, 1)
	assert.Equal(t, "p2", out.StockIssues[0].ProductID)
	assert.Equal(t, 2, out.StockIssues[0].Available)
	require.Len(t, out.ValidItems, 1)
}

// --- Coupons ---

func TestCheckCoupon(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/coupons?code=SAVE10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[couponCheckResponse](t, rec)
	assert.Equal(t, "SAVE10", out.Code)
	assert.True(t, out.Valid)
	assert.Equal(t, 10.0, out.DiscountPercent)
}

func TestCheckCoupon_Unknown(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/coupons?code=NOPE", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateCoupon(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/coupons/validate", token, validateCouponRequest{
		Code:     "save10",
		Subtotal: decimal.NewFromInt(2000),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[validateCouponResponse](t, rec)
	assert.Equal(t, "SAVE10", out.Code)
	assert.Equal(t, 10.0, out.DiscountPercent)
}

// --- Orders ---

var trackingNumberPattern = regexp.MustCompile(`^RIV-\d{8}-\d{4}$`)

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/orders", token, placeOrderRequest{
		Items: []cart.Item{testItem(f.products.products[0], 2)},
		ShippingAddress: order.Address{
			FullName: "Pat Doe", Line1: "1 Main St", City: "Springfield",
			State: "IL", PostalCode: "62701", Phone: "555-0101",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	out := decodeBody[checkoutResponse](t, rec)
	assert.Regexp(t, trackingNumberPattern, out.TrackingNumber)
	assert.Equal(t, 2000.0, out.Totals.Subtotal)
	assert.Equal(t, 0.0, out.Totals.Shipping)
	assert.Equal(t, 2000.0, out.Totals.Total)
	require.Len(t, f.orders.finalized, 1)
	assert.Equal(t, "u1", f.orders.finalized[0].UserID)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/orders", token, placeOrderRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.orders.finalized)
}

func TestPlaceOrder_StockShortageDetails(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/orders", token, placeOrderRequest{
		Items: []cart.Item{testItem(f.products.products[1], 10)},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "insufficient stock", out.Error)
	require.Len(t, out.Details, 1)
	assert.Contains(t, out.Details[0], "Cap")
}

func TestListOrders_ScopedToUser(t *testing.T) {
	f := newFixture(t)

	for _, user := range []string{"u1", "u2"} {
		rec := f.do(t, http.MethodPost, "/orders", signToken(t, user, ""), placeOrderRequest{
			Items: []cart.Item{testItem(f.products.products[0], 1)},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/orders", signToken(t, "u1", ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[map[string][]orderResponse](t, rec)
	require.Len(t, out["orders"], 1)
}

func TestTrackOrder_Public(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", signToken(t, "u1", ""), placeOrderRequest{
		Items: []cart.Item{testItem(f.products.products[0], 1)},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	placed := decodeBody[checkoutResponse](t, rec)

	rec = f.do(t, http.MethodGet, "/orders/track/"+placed.TrackingNumber, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[trackingResponse](t, rec)
	assert.Equal(t, placed.OrderID, out.OrderID)
	assert.Equal(t, "placed", out.CurrentStatus)
	require.Len(t, out.Events, 1)
}

// --- Payments ---

func TestCreatePaymentOrder(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/payments/create-order", token, createPaymentOrderRequest{
		Items: []cart.Item{testItem(f.products.products[0], 1)},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[createPaymentOrderResponse](t, rec)
	assert.Equal(t, "gw_123", out.GatewayOrderID)
	// 1000 subtotal + 200 shipping, in minor units.
	assert.Equal(t, int64(120000), out.Amount)
	assert.Equal(t, "USD", out.Currency)
	assert.Empty(t, f.orders.finalized)
}

func TestCreatePaymentOrder_ExceedsMax(t *testing.T) {
	f := newFixture(t)
	f.products.products[0].Price = decimal.NewFromInt(200000)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/payments/create-order", token, createPaymentOrderRequest{
		Items: []cart.Item{{
			ProductID: "p1", Name: "Tee", Price: decimal.NewFromInt(200000),
			Variant: cart.SelectedVariant{Color: "Black", Size: "M"}, Quantity: 1,
		}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decodeBody[errorResponse](t, rec)
	assert.Contains(t, out.Error, "maximum payable amount")
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	sig := f.verifier.Sign("gw_123", "pay_456")
	rec := f.do(t, http.MethodPost, "/payments/verify", token, verifyPaymentRequest{
		GatewayOrderID: "gw_123",
		PaymentID:      "pay_456",
		Signature:      sig,
		Items:          []cart.Item{testItem(f.products.products[0], 1)},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.orders.finalized, 1)
	placed := f.orders.finalized[0]
	require.NotNil(t, placed.Payment)
	assert.Equal(t, "pay_456", placed.Payment.PaymentID)
	assert.Equal(t, "gateway", placed.Payment.Method)
}

func TestVerifyPayment_BadSignature(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/payments/verify", token, verifyPaymentRequest{
		GatewayOrderID: "gw_123",
		PaymentID:      "pay_456",
		Signature:      f.verifier.Sign("gw_123", "tampered"),
		Items:          []cart.Item{testItem(f.products.products[0], 1)},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "payment signature mismatch", out.Error)
	assert.Empty(t, f.orders.finalized, "a failed verification must not create an order")
}

func TestVerifyPayment_MissingFields(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "u1", "")

	rec := f.do(t, http.MethodPost, "/payments/verify", token, verifyPaymentRequest{
		GatewayOrderID: "gw_123",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.orders.finalized)
}

// --- Admin tracking ---

func TestUpdateTracking(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/orders", signToken(t, "u1", ""), placeOrderRequest{
		Items: []cart.Item{testItem(f.products.products[0], 1)},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	placed := decodeBody[checkoutResponse](t, rec)

	admin := signToken(t, "admin1", "admin")
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/admin/orders/%s/tracking", placed.OrderID), admin,
		updateTrackingRequest{Status: "out_for_delivery", Message: "Courier picked up"})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[trackingResponse](t, rec)
	assert.Equal(t, "out_for_delivery", out.CurrentStatus)
	assert.Equal(t, order.StatusShipped, f.orders.byID[placed.OrderID].Status)
}

func TestUpdateTracking_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	admin := signToken(t, "admin1", "admin")

	rec := f.do(t, http.MethodPatch, "/admin/orders/o1/tracking", admin,
		updateTrackingRequest{Status: "teleported"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decodeBody[errorResponse](t, rec)
	assert.Contains(t, out.Error, "unknown tracking status")
}
