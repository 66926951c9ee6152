package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/order"
	"github.com/souqline/checkout-api/internal/domain/pricing"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, items, address, city, postal_code, country,
		phone_numbers, shipping_price, total_price, coupon_code, payment_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	selectOrderSQL = `SELECT id, user_id, items, address, city, postal_code, country,
		phone_numbers, shipping_price, total_price, coupon_code, payment_method, status,
		payment_intent_id, is_paid, paid_at, is_delivered, delivered_at, delivered_by, created_at
		FROM orders`

	getOrderByIDSQL     = selectOrderSQL + ` WHERE id = $1`
	getOrderByIntentSQL = selectOrderSQL + ` WHERE payment_intent_id = $1`

	setIntentSQL = `UPDATE orders SET payment_intent_id = $2 WHERE id = $1`

	// Every transition below is conditional on the current state so that
	// racing callers (webhook replays, double deliveries) serialize at the
	// row: exactly one update reports an affected row.
	markPaidSQL = `UPDATE orders SET is_paid = TRUE, paid_at = $2, status = 'Paid'
		WHERE id = $1 AND is_paid = FALSE AND status IN ('Pending', 'Placed')`

	markDeliveredSQL = `UPDATE orders
		SET status = 'Delivered', is_delivered = TRUE, delivered_at = $3, delivered_by = $2
		WHERE id = $1 AND status IN ('Placed', 'Paid')`

	markCancelledSQL = `UPDATE orders SET status = 'Cancelled'
		WHERE id = $1 AND status NOT IN ('Cancelled', 'Delivered', 'Refunded')`

	markRefundedSQL = `UPDATE orders SET status = 'Refunded'
		WHERE id = $1 AND status = 'Paid'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items are serialized to a JSONB column; they are immutable snapshots, so
// nothing ever queries inside them.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	var couponCode *string
	if o.CouponCode != "" {
		couponCode = &o.CouponCode
	}

	_, err = r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, itemsJSON,
		o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode, o.Shipping.Country,
		o.PhoneNumbers, o.ShippingPrice, o.TotalPrice, couponCode,
		string(o.PaymentMethod), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with the given identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByIntent returns the order holding the given payment intent reference.
func (r *OrderRepository) GetByIntent(ctx context.Context, intentID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIntentSQL, intentID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

// SetPaymentIntent stores the intent reference, overwriting any prior one.
func (r *OrderRepository) SetPaymentIntent(ctx context.Context, orderID, intentID string) error {
	tag, err := r.pool.Exec(ctx, setIntentSQL, orderID, intentID)
	if err != nil {
		return fmt.Errorf("storing intent for order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkPaid transitions to Paid unless the order is already paid.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, markPaidSQL, orderID, at)
	if err != nil {
		return false, fmt.Errorf("marking order %q paid: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDelivered transitions to Delivered from Placed or Paid.
func (r *OrderRepository) MarkDelivered(ctx context.Context, orderID, agentID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, markDeliveredSQL, orderID, agentID, at)
	if err != nil {
		return false, fmt.Errorf("marking order %q delivered: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCancelled transitions to Cancelled from any non-terminal state.
func (r *OrderRepository) MarkCancelled(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, markCancelledSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("marking order %q cancelled: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRefunded transitions to Refunded from Paid.
func (r *OrderRepository) MarkRefunded(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, markRefundedSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("marking order %q refunded: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		shippingPrice decimal.Decimal
		totalPrice    decimal.Decimal
		couponCode    *string
		method        string
		status        string
		intentID      *string
		deliveredBy   *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode, &o.Shipping.Country,
		&o.PhoneNumbers, &shippingPrice, &totalPrice, &couponCode, &method, &status,
		&intentID, &o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt, &deliveredBy, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	var items []pricing.LineItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Items = items
	o.ShippingPrice = shippingPrice
	o.TotalPrice = totalPrice
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	if intentID != nil {
		o.PaymentIntentID = *intentID
	}
	if deliveredBy != nil {
		o.DeliveredBy = *deliveredBy
	}
	return o, nil
}
