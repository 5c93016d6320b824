package api

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type couponCheckResponse struct {
	Code            string  `json:"code"`
	Valid           bool    `json:"valid"`
	DiscountPercent float64 `json:"discountPercent"`
	Description     string  `json:"description,omitempty"`
}

// checkCoupon is the public existence/activity check. It deliberately skips
// the per-user rules (minimum order, single use); the checkout path enforces
// those through the full validator.
func (h *Handler) checkCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	c, err := h.coupons.FindByCode(r.Context(), code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, couponCheckResponse{
		Code:            c.Code,
		Valid:           c.Active,
		DiscountPercent: c.DiscountPercent.InexactFloat64(),
		Description:     c.Description,
	})
}

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type validateCouponResponse struct {
	Code            string  `json:"code"`
	DiscountPercent float64 `json:"discountPercent"`
	MinOrderValue   float64 `json:"minOrderValue,omitempty"`
}

// validateCoupon runs the full checkout-path validation for the
// authenticated user, including expiry and single-use history.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	applied, err := h.coupVal.Validate(r.Context(), req.Code, UserID(r.Context()), req.Subtotal)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Code:            applied.Code,
		DiscountPercent: applied.DiscountPercent.InexactFloat64(),
		MinOrderValue:   applied.MinOrderValue.InexactFloat64(),
	})
}
