// Package order implements the checkout core: pricing a cart against live
// stock and coupons, and finalizing the priced cart into a persisted order
// with its tracking record and committed stock decrements.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/coupon"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPlaced     Status = "placed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Sentinel errors for order validation and finalization.
var (
	ErrEmptyItems = errors.New("items required")
	// ErrInvalidItem rejects a structurally malformed line item before any
	// store access.
	ErrInvalidItem = errors.New("invalid item structure")
	// ErrStockConflict is returned when a guarded stock decrement matched no
	// row at finalize time: stock changed adversely between pricing and
	// commit. The whole transaction is rolled back; no order exists.
	ErrStockConflict = errors.New("stock changed during checkout")
	// ErrTrackingNumberTaken signals a tracking number collision; the caller
	// regenerates and retries.
	ErrTrackingNumberTaken = errors.New("tracking number already exists")
	// ErrNotFound is returned when a requested order or tracking record is absent.
	ErrNotFound = errors.New("order not found")
)

// ProductNotFoundError indicates a cart line references a product that no
// longer exists. Surfaced as a business-rule failure, not a 404: the cart
// cannot be fulfilled.
type ProductNotFoundError struct {
	Name string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.Name)
}

// VariantNotFoundError indicates the product exists but the requested
// (color, size) combination does not.
type VariantNotFoundError struct {
	Name  string
	Color string
	Size  string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s/%s of product %q not found", e.Color, e.Size, e.Name)
}

// StockShortageError aggregates every understocked line in the cart so the
// client sees all shortages in one response instead of fixing them one at a
// time.
type StockShortageError struct {
	Details []string
}

func (e *StockShortageError) Error() string {
	return "insufficient stock"
}

// Address is the shipping destination snapshot stored on the order.
type Address struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

// Payment records the verified gateway payment attached to a paid order.
type Payment struct {
	GatewayOrderID string    `json:"gatewayOrderId"`
	PaymentID      string    `json:"paymentId"`
	Signature      string    `json:"signature"`
	Method         string    `json:"method"`
	PaidAt         time.Time `json:"paidAt"`
}

// Order is the persisted result of a successful checkout. Items and pricing
// are immutable after creation; only Status changes, via tracking updates.
type Order struct {
	ID              string
	UserID          string
	Items           []cart.Item
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	CouponCode      string
	Status          Status
	TrackingNumber  string
	ShippingAddress Address
	Payment         *Payment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TrackingEvent is one entry in an order's tracking history.
type TrackingEvent struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracking is the 1:1 companion record of an order. Events are append-only;
// CurrentStatus mirrors the latest event.
type Tracking struct {
	OrderID        string
	TrackingNumber string
	UserID         string
	Events         []TrackingEvent
	CurrentStatus  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository defines persistence operations for orders and their tracking
// records. Finalize must be atomic: order insert, tracking insert, and every
// guarded stock decrement commit together or not at all.
type Repository interface {
	// Finalize persists the order and tracking record and applies the stock
	// reservations in a single transaction. Returns ErrStockConflict when a
	// reservation's guard matches no row, ErrTrackingNumberTaken on a
	// tracking number collision.
	Finalize(ctx context.Context, o *Order, t *Tracking, reservations []catalog.StockReservation) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	TrackingByNumber(ctx context.Context, trackingNumber string) (*Tracking, error)
	// AppendTrackingEvent appends the event, overwrites the tracking record's
	// current status, and updates the order status, atomically.
	AppendTrackingEvent(ctx context.Context, orderID string, event TrackingEvent, status Status) (*Tracking, error)
	// CouponUsed reports whether any prior order of the user carries the code.
	CouponUsed(ctx context.Context, userID, code string) (bool, error)
}

var _ coupon.UsageChecker = (Repository)(nil)

// trackingStatusToOrderStatus is the fixed lookup table remapping a tracking
// event status to the order lifecycle status it implies.
var trackingStatusToOrderStatus = map[string]Status{
	"placed":           StatusPlaced,
	"confirmed":        StatusProcessing,
	"packed":           StatusProcessing,
	"shipped":          StatusShipped,
	"out_for_delivery": StatusShipped,
	"delivered":        StatusDelivered,
	"cancelled":        StatusCancelled,
}

// OrderStatusForTracking resolves a tracking event status to the order status
// it maps to. Unknown statuses are rejected.
func OrderStatusForTracking(trackingStatus string) (Status, bool) {
	s, ok := trackingStatusToOrderStatus[strings.ToLower(trackingStatus)]
	return s, ok
}
