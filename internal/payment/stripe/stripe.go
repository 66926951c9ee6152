// Package stripe implements payment.Gateway on top of the Stripe API.
package stripe

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/souqline/checkout-api/internal/domain/coupon"
	"github.com/souqline/checkout-api/internal/payment"
)

var _ payment.Gateway = (*Gateway)(nil)

// Config holds the Stripe credentials and hosted-checkout redirect URLs.
type Config struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// Gateway is the Stripe-backed payment.Gateway. All amounts cross into
// Stripe's minor-unit convention here and nowhere else.
type Gateway struct {
	api *client.API
	cfg Config
}

// New creates a Gateway using the given Stripe secret key.
func New(cfg Config) *Gateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Gateway{api: api, cfg: cfg}
}

// CreateCheckoutSession opens a hosted checkout session for the order. The
// order ID rides in the session metadata so the webhook can find its way
// back to the order.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutSessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Params:        stripe.Params{Context: ctx},
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(req.CustomerEmail),
		SuccessURL:    stripe.String(g.cfg.SuccessURL),
		CancelURL:     stripe.String(g.cfg.CancelURL),
	}
	params.AddMetadata("order_id", req.OrderID)

	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(line.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(payment.MinorUnits(line.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Title),
				},
			},
		})
	}

	if req.GatewayCouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(req.GatewayCouponID)},
		}
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", wrap("create checkout session", err)
	}
	return sess.ID, nil
}

// CreatePaymentIntent creates an intent for the order total.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(payment.MinorUnits(amount)),
		Currency: stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
	}
	params.AddMetadata("order_id", orderID)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", wrap("create payment intent", err)
	}
	return pi.ID, nil
}

// MirrorCoupon creates a single-use Stripe coupon equivalent to the internal
// one: PercentOff for percentage discounts, AmountOff in minor units for
// fixed discounts.
func (g *Gateway) MirrorCoupon(ctx context.Context, c *coupon.Coupon, currency string) (string, error) {
	params := &stripe.CouponParams{
		Params:   stripe.Params{Context: ctx},
		Name:     stripe.String(c.Code),
		Duration: stripe.String(string(stripe.CouponDurationOnce)),
	}
	switch c.Discount.Kind {
	case coupon.KindPercentage:
		params.PercentOff = stripe.Float64(c.Discount.Amount.InexactFloat64())
	case coupon.KindFixed:
		params.AmountOff = stripe.Int64(payment.MinorUnits(c.Discount.Amount))
		params.Currency = stripe.String(currency)
	default:
		return "", errors.Errorf("unsupported discount kind: %q", c.Discount.Kind)
	}

	sc, err := g.api.Coupons.New(params)
	if err != nil {
		return "", wrap("mirror coupon", err)
	}
	return sc.ID, nil
}

// ConfirmIntent confirms the intent referenced by the webhook.
func (g *Gateway) ConfirmIntent(ctx context.Context, intentRef string) error {
	_, err := g.api.PaymentIntents.Confirm(intentRef, &stripe.PaymentIntentConfirmParams{
		Params:        stripe.Params{Context: ctx},
		PaymentMethod: stripe.String("pm_card_visa"),
	})
	if err != nil {
		return wrap("confirm payment intent", err)
	}
	return nil
}

// RefundIntent refunds the full charge behind the intent.
func (g *Gateway) RefundIntent(ctx context.Context, intentRef string) (string, error) {
	ref, err := g.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(intentRef),
	})
	if err != nil {
		return "", wrap("refund payment intent", err)
	}
	return ref.ID, nil
}

// wrap converts a Stripe client error into a payment.GatewayError carrying
// Stripe's own reason string when one is available.
func wrap(op string, err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		return &payment.GatewayError{Op: op, Reason: sErr.Msg, Err: err}
	}
	return &payment.GatewayError{Op: op, Reason: err.Error(), Err: err}
}
