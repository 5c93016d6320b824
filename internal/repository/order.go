package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rivamart/storefront/internal/domain/cart"
	"github.com/rivamart/storefront/internal/domain/catalog"
	"github.com/rivamart/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, items, subtotal, discount, shipping, total, coupon_code,
		 status, tracking_number, shipping_address, payment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	insertTrackingSQL = `INSERT INTO order_tracking
		(order_id, tracking_number, user_id, events, current_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// The stock guard: the decrement only matches while enough stock remains.
	// Zero rows affected means a concurrent checkout got there first.
	reserveStockSQL = `UPDATE product_variants SET stock = stock - $4
		WHERE product_id = $1 AND color = $2 AND size = $3 AND stock >= $4`

	selectOrderSQL = `SELECT id, user_id, items, subtotal, discount, shipping, total, coupon_code,
		status, tracking_number, shipping_address, payment, created_at, updated_at
		FROM orders`

	getOrderByIDSQL     = selectOrderSQL + ` WHERE id = $1`
	listOrdersByUserSQL = selectOrderSQL + ` WHERE user_id = $1 ORDER BY created_at DESC`

	couponUsedSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND coupon_code = $2)`

	getTrackingByNumberSQL = `SELECT order_id, tracking_number, user_id, events, current_status, created_at, updated_at
		FROM order_tracking WHERE tracking_number = $1`

	appendTrackingEventSQL = `UPDATE order_tracking
		SET events = events || $2::jsonb, current_status = $3, updated_at = now()
		WHERE order_id = $1
		RETURNING order_id, tracking_number, user_id, events, current_status, created_at, updated_at`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
)

// trackingNumberConstraint is the unique constraint violated on a tracking
// number collision.
const trackingNumberConstraint = "orders_tracking_number_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Finalize commits the order, its tracking record, and every staged stock
// decrement in one transaction. A guard that matches no row aborts the whole
// transaction with order.ErrStockConflict, so an order can never exist whose
// stock was not actually reserved.
func (r *OrderRepository) Finalize(ctx context.Context, o *order.Order, t *order.Tracking, reservations []catalog.StockReservation) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	var paymentJSON []byte
	if o.Payment != nil {
		if paymentJSON, err = json.Marshal(o.Payment); err != nil {
			return fmt.Errorf("marshaling payment: %w", err)
		}
	}
	eventsJSON, err := json.Marshal(t.Events)
	if err != nil {
		return fmt.Errorf("marshaling tracking events: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.Discount, o.Shipping, o.Total,
		o.CouponCode, string(o.Status), o.TrackingNumber, addressJSON, paymentJSON,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, trackingNumberConstraint) {
			return order.ErrTrackingNumberTaken
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	_, err = tx.Exec(ctx, insertTrackingSQL,
		t.OrderID, t.TrackingNumber, t.UserID, eventsJSON, t.CurrentStatus,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating tracking for order %q: %w", o.ID, err)
	}

	// Batch the guarded decrements; inspect each result individually.
	batch := &pgx.Batch{}
	for _, res := range reservations {
		batch.Queue(reserveStockSQL, res.ProductID, res.Color, res.Size, res.Quantity)
	}
	br := tx.SendBatch(ctx, batch)
	for _, res := range reservations {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("reserving stock for %s (%s/%s): %w", res.ProductID, res.Color, res.Size, err)
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return order.ErrStockConflict
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing stock reservation batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// CouponUsed reports whether any prior order of the user carries the code.
func (r *OrderRepository) CouponUsed(ctx context.Context, userID, code string) (bool, error) {
	var used bool
	if err := r.pool.QueryRow(ctx, couponUsedSQL, userID, code).Scan(&used); err != nil {
		return false, fmt.Errorf("checking coupon usage: %w", err)
	}
	return used, nil
}

// TrackingByNumber returns the tracking record for a tracking number.
func (r *OrderRepository) TrackingByNumber(ctx context.Context, trackingNumber string) (*order.Tracking, error) {
	rows, err := r.pool.Query(ctx, getTrackingByNumberSQL, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("getting tracking %q: %w", trackingNumber, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTracking)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting tracking %q: %w", trackingNumber, err)
	}
	return &t, nil
}

// AppendTrackingEvent appends the event to the tracking history, overwrites
// the current status, and updates the order status, in one transaction.
func (r *OrderRepository) AppendTrackingEvent(ctx context.Context, orderID string, event order.TrackingEvent, status order.Status) (*order.Tracking, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling tracking event: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning tracking update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, appendTrackingEventSQL, orderID, eventJSON, event.Status)
	if err != nil {
		return nil, fmt.Errorf("appending tracking event for order %q: %w", orderID, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTracking)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("appending tracking event for order %q: %w", orderID, err)
	}

	if _, err := tx.Exec(ctx, updateOrderStatusSQL, orderID, string(status)); err != nil {
		return nil, fmt.Errorf("updating status for order %q: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing tracking update for order %q: %w", orderID, err)
	}
	return &t, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		addressJSON []byte
		paymentJSON []byte
		status      string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.Discount, &o.Shipping,
		&o.Total, &o.CouponCode, &status, &o.TrackingNumber, &addressJSON,
		&paymentJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("decoding order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("decoding shipping address: %w", err)
	}
	if len(paymentJSON) > 0 {
		o.Payment = &order.Payment{}
		if err := json.Unmarshal(paymentJSON, o.Payment); err != nil {
			return o, fmt.Errorf("decoding payment: %w", err)
		}
	}
	if o.Items == nil {
		o.Items = []cart.Item{}
	}
	return o, nil
}

func scanTracking(row pgx.CollectableRow) (order.Tracking, error) {
	var (
		t          order.Tracking
		eventsJSON []byte
	)
	err := row.Scan(
		&t.OrderID, &t.TrackingNumber, &t.UserID, &eventsJSON, &t.CurrentStatus,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(eventsJSON, &t.Events); err != nil {
		return t, fmt.Errorf("decoding tracking events: %w", err)
	}
	return t, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
