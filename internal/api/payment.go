package api

import (
	"net/http"
	"time"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/order"
)

type createPaymentOrderRequest struct {
	Items      []cart.Item `json:"items"`
	CouponCode string      `json:"couponCode,omitempty"`
}

type createPaymentOrderResponse struct {
	GatewayOrderID string         `json:"gatewayOrderId"`
	Amount         int64          `json:"amount"` // minor units
	Currency       string         `json:"currency"`
	Totals         totalsResponse `json:"totals"`
}

// createPaymentOrder prices the cart, enforces the maximum payable amount,
// and registers a gateway order for the total. Nothing is persisted here;
// stock stays unreserved until the verified finalize.
func (h *Handler) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	var req createPaymentOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pr, err := h.orders.Pricing().Prepare(r.Context(), UserID(r.Context()), req.Items, req.CouponCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if pr.Total.GreaterThan(h.cfg.MaxPayableAmount) {
		writeError(w, http.StatusBadRequest, "order total exceeds the maximum payable amount")
		return
	}

	gw, err := h.gateway.CreateOrder(r.Context(), pr.Total, h.cfg.Currency, "riv-"+UserID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, createPaymentOrderResponse{
		GatewayOrderID: gw.ID,
		Amount:         gw.Amount,
		Currency:       gw.Currency,
		Totals: totalsResponse{
			Subtotal: pr.Subtotal.InexactFloat64(),
			Discount: pr.Discount.InexactFloat64(),
			Shipping: pr.Shipping.InexactFloat64(),
			Total:    pr.Total.InexactFloat64(),
		},
	})
}

type verifyPaymentRequest struct {
	GatewayOrderID  string        `json:"gatewayOrderId"`
	PaymentID       string        `json:"paymentId"`
	Signature       string        `json:"signature"`
	Items           []cart.Item   `json:"items"`
	CouponCode      string        `json:"couponCode,omitempty"`
	ShippingAddress order.Address `json:"shippingAddress"`
}

// verifyPayment is the payment verification gate: the signature check fails
// the whole request before anything is written. On a valid signature the cart
// is re-priced against a fresh snapshot, then finalized with the payment
// record attached.
func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "gateway order id, payment id, and signature are required")
		return
	}

	if err := h.verifier.Verify(req.GatewayOrderID, req.PaymentID, req.Signature); err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          UserID(r.Context()),
		Items:           req.Items,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		Payment: &order.Payment{
			GatewayOrderID: req.GatewayOrderID,
			PaymentID:      req.PaymentID,
			Signature:      req.Signature,
			Method:         "gateway",
			PaidAt:         time.Now(),
		},
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		OrderID:        result.Order.ID,
		TrackingNumber: result.Order.TrackingNumber,
		Order:          orderToResponse(result.Order),
		Totals:         orderTotals(result.Order),
	})
}
