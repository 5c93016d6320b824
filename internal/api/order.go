package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/order"
)

type totalsResponse struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

type orderResponse struct {
	ID              string         `json:"id"`
	TrackingNumber  string         `json:"trackingNumber"`
	Status          string         `json:"status"`
	Items           []cart.Item    `json:"items"`
	Totals          totalsResponse `json:"totals"`
	CouponCode      string         `json:"couponCode,omitempty"`
	ShippingAddress order.Address  `json:"shippingAddress"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type checkoutResponse struct {
	OrderID        string         `json:"orderId"`
	TrackingNumber string         `json:"trackingNumber"`
	Order          orderResponse  `json:"order"`
	Totals         totalsResponse `json:"totals"`
}

func orderToResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		TrackingNumber:  o.TrackingNumber,
		Status:          string(o.Status),
		Items:           o.Items,
		Totals:          orderTotals(o),
		CouponCode:      o.CouponCode,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
	}
}

func orderTotals(o *order.Order) totalsResponse {
	return totalsResponse{
		Subtotal: o.Subtotal.InexactFloat64(),
		Discount: o.Discount.InexactFloat64(),
		Shipping: o.Shipping.InexactFloat64(),
		Total:    o.Total.InexactFloat64(),
	}
}

type placeOrderRequest struct {
	Items           []cart.Item   `json:"items"`
	CouponCode      string        `json:"couponCode,omitempty"`
	ShippingAddress order.Address `json:"shippingAddress"`
}

// placeOrder is the pay-on-delivery checkout path: price and finalize in one
// request, no payment record attached.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          UserID(r.Context()),
		Items:           req.Items,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:        result.Order.ID,
		TrackingNumber: result.Order.TrackingNumber,
		Order:          orderToResponse(result.Order),
		Totals:         orderTotals(result.Order),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListByUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = orderToResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

type trackingResponse struct {
	OrderID        string                `json:"orderId"`
	TrackingNumber string                `json:"trackingNumber"`
	CurrentStatus  string                `json:"currentStatus"`
	Events         []order.TrackingEvent `json:"events"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func trackingToResponse(t *order.Tracking) trackingResponse {
	return trackingResponse{
		OrderID:        t.OrderID,
		TrackingNumber: t.TrackingNumber,
		CurrentStatus:  t.CurrentStatus,
		Events:         t.Events,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "trackingNumber")

	t, err := h.store.TrackingByNumber(r.Context(), number)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingToResponse(t))
}
