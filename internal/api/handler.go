// Package api exposes the storefront checkout HTTP API: cart, coupons,
// payments, orders, and the admin tracking endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/coupon"
	"github.com/rivamart/storefront/internal/domain/order"
	"github.com/rivamart/storefront/internal/payment"
)

// Gateway creates orders on the payment provider ahead of a charge.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*payment.GatewayOrder, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MaxPayableAmount caps the total a gateway order may be created for.
	MaxPayableAmount decimal.Decimal
	// Currency is the ISO currency code sent to the gateway.
	Currency string
}

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	cfg      Config
	carts    *cart.Service
	products catalog.Repository
	coupons  coupon.Repository
	coupVal  coupon.Validator
	orders   *order.Service
	store    order.Repository
	gateway  Gateway
	verifier *payment.Verifier
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	carts *cart.Service,
	products catalog.Repository,
	coupons coupon.Repository,
	coupVal coupon.Validator,
	orders *order.Service,
	store order.Repository,
	gateway Gateway,
	verifier *payment.Verifier,
) *Handler {
	return &Handler{
		cfg:      cfg,
		carts:    carts,
		products: products,
		coupons:  coupons,
		coupVal:  coupVal,
		orders:   orders,
		store:    store,
		gateway:  gateway,
		verifier: verifier,
	}
}

// Routes builds the /api router.
func (h *Handler) Routes(auth *Auth) chi.Router {
	r := chi.NewRouter()

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Post("/validate-stock", h.validateStock)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Get("/", h.getCart)
			r.Post("/items", h.addCartItem)
			r.Patch("/update-quantity", h.updateCartQuantity)
		})
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.checkCoupon)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Post("/validate", h.validateCoupon)
		})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Post("/create-order", h.createPaymentOrder)
		r.Post("/verify", h.verifyPayment)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/track/{trackingNumber}", h.trackOrder)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireUser, auth.RequireAdmin)
		r.Patch("/orders/{id}/tracking", h.updateTracking)
	})

	return r
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
