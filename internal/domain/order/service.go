package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rivamart/storefront/internal/domain/cart"
)

const (
	// maxPricingAttempts bounds the reprice-and-retry loop on stock conflicts.
	maxPricingAttempts = 3
	// maxTrackingAttempts bounds tracking number regeneration on collisions.
	maxTrackingAttempts = 5
)

// EventPublisher emits order lifecycle events to interested consumers.
// Publish failures never fail a checkout.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

// CheckoutRequest is the input for placing an order from a priced cart.
type CheckoutRequest struct {
	UserID          string
	Items           []cart.Item
	CouponCode      string
	ShippingAddress Address
	Payment         *Payment
}

// CheckoutResult is the output of a successful checkout.
type CheckoutResult struct {
	Order   *Order
	Pricing *PricingResult
}

// Service orchestrates checkout: pricing, finalization with bounded retries,
// cart consumption, and event publication.
type Service struct {
	pricing *PricingEngine
	orders  Repository
	carts   cart.Repository
	events  EventPublisher
	now     func() time.Time
}

// NewService creates an order Service. events may be nil when no broker is
// configured.
func NewService(pricing *PricingEngine, orders Repository, carts cart.Repository, events EventPublisher) *Service {
	return &Service{
		pricing: pricing,
		orders:  orders,
		carts:   carts,
		events:  events,
		now:     time.Now,
	}
}

// Pricing exposes the engine for callers that price without finalizing.
func (s *Service) Pricing() *PricingEngine {
	return s.pricing
}

// Checkout prices the cart and finalizes the order atomically. On a stock
// conflict the pricing is re-run against a fresh snapshot a bounded number of
// times, so a concurrent checkout racing on the same variant either gets the
// remaining stock or a conflict error; it never produces an order whose stock
// was not reserved.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	var result *CheckoutResult

	for attempt := 0; attempt < maxPricingAttempts; attempt++ {
		pr, err := s.pricing.Prepare(ctx, req.UserID, req.Items, req.CouponCode)
		if err != nil {
			return nil, err
		}

		o, err := s.finalize(ctx, req, pr)
		if err == nil {
			result = &CheckoutResult{Order: o, Pricing: pr}
			break
		}
		if errors.Is(err, ErrStockConflict) {
			continue
		}
		return nil, err
	}
	if result == nil {
		return nil, ErrStockConflict
	}

	// Checkout consumes the cart. The order is already committed, so a cache
	// failure here is logged and swallowed.
	if err := s.carts.Clear(ctx, req.UserID); err != nil {
		zctx.From(ctx).Warn("clear cart after checkout",
			zap.String("user_id", req.UserID),
			zap.String("order_id", result.Order.ID),
			zap.Error(err),
		)
	}

	if s.events != nil {
		if err := s.events.OrderPlaced(ctx, result.Order); err != nil {
			zctx.From(ctx).Warn("publish order placed event",
				zap.String("order_id", result.Order.ID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// finalize builds the order and tracking records and commits them together
// with the staged stock decrements, regenerating the tracking number on
// collision.
func (s *Service) finalize(ctx context.Context, req CheckoutRequest, pr *PricingResult) (*Order, error) {
	now := s.now()

	couponCode := ""
	if pr.Coupon != nil {
		couponCode = pr.Coupon.Code
	}

	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Items:           req.Items,
		Subtotal:        pr.Subtotal,
		Discount:        pr.Discount,
		Shipping:        pr.Shipping,
		Total:           pr.Total,
		CouponCode:      couponCode,
		Status:          StatusPlaced,
		ShippingAddress: req.ShippingAddress,
		Payment:         req.Payment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 0; attempt < maxTrackingAttempts; attempt++ {
		o.TrackingNumber = NewTrackingNumber(now)
		t := NewPlacedTracking(o, now)

		err := s.orders.Finalize(ctx, o, t, pr.Reservations)
		if errors.Is(err, ErrTrackingNumberTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, ErrTrackingNumberTaken
}

// UpdateTracking appends a tracking event and remaps the event status to the
// order status via the fixed lookup table.
func (s *Service) UpdateTracking(ctx context.Context, orderID, trackingStatus, message string) (*Tracking, error) {
	status, ok := OrderStatusForTracking(trackingStatus)
	if !ok {
		return nil, &UnknownTrackingStatusError{Status: trackingStatus}
	}

	event := TrackingEvent{
		Status:    trackingStatus,
		Message:   message,
		Timestamp: s.now(),
	}
	return s.orders.AppendTrackingEvent(ctx, orderID, event, status)
}

// UnknownTrackingStatusError rejects a tracking update whose status is not in
// the lookup table.
type UnknownTrackingStatusError struct {
	Status string
}

func (e *UnknownTrackingStatusError) Error() string {
	return "unknown tracking status " + e.Status
}
