package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/coupon"
	"github.com/rivamart/storefront/internal/domain/order"
	"github.com/rivamart/storefront/internal/payment"
)

// errorResponse is the uniform error envelope for every failure.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeDomainError maps a domain error to its HTTP status and envelope.
// Business-rule failures on the pricing path surface as 400 even when a
// referenced resource is missing: the cart cannot be fulfilled, the resource
// URL is not what is absent.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		shortage        *order.StockShortageError
		productNotFound *order.ProductNotFoundError
		variantNotFound *order.VariantNotFoundError
		minOrder        *coupon.MinOrderError
		cartStock       *cart.StockError
		unknownStatus   *order.UnknownTrackingStatusError
	)

	switch {
	case errors.As(err, &shortage):
		writeError(w, http.StatusBadRequest, shortage.Error(), shortage.Details...)
	case errors.As(err, &productNotFound),
		errors.As(err, &variantNotFound),
		errors.As(err, &minOrder),
		errors.As(err, &cartStock),
		errors.As(err, &unknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidItem),
		errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponAlreadyUsed),
		errors.Is(err, payment.ErrSignatureMismatch):
		writeError(w, http.StatusBadRequest, rootMessage(err))
	case errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, rootMessage(err))
	case errors.Is(err, order.ErrStockConflict):
		writeError(w, http.StatusConflict, order.ErrStockConflict.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// rootMessage unwraps to the sentinel's message so wrapped context like
// "validate coupon:" never leaks into client responses.
func rootMessage(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}
