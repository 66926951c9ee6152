// Package payment defines the payment-gateway boundary. Implementations
// translate to and from the external provider's model and carry no business
// rules: the order lifecycle alone decides what a success or failure means
// for order state.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/coupon"
)

// GatewayError wraps a provider failure with the provider's own reason
// string. It is never retried transparently — retrying a payment operation
// can duplicate a charge.
type GatewayError struct {
	Op     string
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %s", e.Op, e.Reason)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Line is one order line as presented to the gateway's hosted checkout.
// UnitPrice stays in major units here; each adapter converts to its
// provider's minor-unit convention internally.
type Line struct {
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CheckoutSessionRequest describes a hosted-payment-flow session. OrderID
// travels in the session metadata and is echoed back by the webhook.
type CheckoutSessionRequest struct {
	OrderID         string
	CustomerEmail   string
	Currency        string
	Lines           []Line
	GatewayCouponID string
}

// Gateway is the boundary contract with the external payment provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (sessionRef string, err error)
	CreatePaymentIntent(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (intentRef string, err error)
	// MirrorCoupon creates a gateway-side discount object matching the
	// internal coupon, for use in checkout sessions.
	MirrorCoupon(ctx context.Context, c *coupon.Coupon, currency string) (gatewayCouponRef string, err error)
	ConfirmIntent(ctx context.Context, intentRef string) error
	RefundIntent(ctx context.Context, intentRef string) (refundRef string, err error)
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount to the gateway's minor-unit
// convention (piastres, cents), rounding half-up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
