package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/pricing"
)

// Status is the order lifecycle state. Delivered, Cancelled and Refunded are
// terminal: no transition leaves them.
type Status string

const (
	// StatusPending is a gateway-paid order awaiting payment confirmation.
	StatusPending Status = "Pending"
	// StatusPlaced is a cash order accepted for fulfilment.
	StatusPlaced    Status = "Placed"
	StatusPaid      Status = "Paid"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
	StatusRefunded  Status = "Refunded"
)

// PaymentMethod is chosen at creation and immutable afterwards.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "Cash"
	MethodStripe PaymentMethod = "Stripe"
	MethodPaymob PaymentMethod = "Paymob"
)

// ParseMethod validates a client-supplied payment method string.
func ParseMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCash, MethodStripe, MethodPaymob:
		return PaymentMethod(s), nil
	default:
		return "", ErrInvalidMethod
	}
}

// Lifecycle errors. The HTTP layer maps them to status classes.
var (
	ErrNotFound            = errors.New("order not found")
	ErrNotOwner            = errors.New("order belongs to another user")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrUnsupportedGateway  = errors.New("no payment gateway for this method")
	ErrCannotPay           = errors.New("order cannot be paid in its current state")
	ErrCannotDeliver       = errors.New("order cannot be delivered in its current state")
	ErrCannotCancel        = errors.New("order cannot be cancelled in its current state")
	ErrCancelWindowElapsed = errors.New("cancellation window has elapsed")
	ErrCannotRefund        = errors.New("order cannot be refunded in its current state")
	ErrNoPaymentIntent     = errors.New("order has no payment intent")
)

// Address is the shipping destination captured on the order.
type Address struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

// Order is the aggregate root. Items carry unit-price snapshots frozen at
// creation; later catalog changes never touch an existing order.
// TotalPrice <= ShippingPrice, equal unless a coupon was applied.
type Order struct {
	ID              string
	UserID          string
	Items           []pricing.LineItem
	Shipping        Address
	PhoneNumbers    []string
	ShippingPrice   decimal.Decimal
	TotalPrice      decimal.Decimal
	CouponCode      string
	PaymentMethod   PaymentMethod
	Status          Status
	PaymentIntentID string
	IsPaid          bool
	PaidAt          *time.Time
	IsDelivered     bool
	DeliveredAt     *time.Time
	DeliveredBy     string
	CreatedAt       time.Time
}

// Terminal reports whether no further lifecycle transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// Repository persists orders. The Mark* operations are conditional updates
// keyed by id plus current state, so racing callers (webhook vs. polling,
// double deliveries) serialize at the storage layer: exactly one caller
// observes updated=true.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByIntent(ctx context.Context, intentID string) (*Order, error)

	// SetPaymentIntent stores (and on re-initiation overwrites) the
	// gateway intent reference.
	SetPaymentIntent(ctx context.Context, orderID, intentID string) error

	// MarkPaid transitions to Paid iff the order is not already paid.
	MarkPaid(ctx context.Context, orderID string, at time.Time) (updated bool, err error)

	// MarkDelivered transitions to Delivered iff status is Placed or Paid.
	MarkDelivered(ctx context.Context, orderID, agentID string, at time.Time) (updated bool, err error)

	// MarkCancelled transitions to Cancelled iff status is non-terminal.
	MarkCancelled(ctx context.Context, orderID string) (updated bool, err error)

	// MarkRefunded transitions to Refunded iff status is Paid.
	MarkRefunded(ctx context.Context, orderID string) (updated bool, err error)
}
