package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/souqline/checkout-api/internal/domain/cart"
	"github.com/souqline/checkout-api/internal/domain/coupon"
	"github.com/souqline/checkout-api/internal/domain/inventory"
	"github.com/souqline/checkout-api/internal/domain/pricing"
	"github.com/souqline/checkout-api/internal/domain/product"
	"github.com/souqline/checkout-api/internal/domain/user"
	"github.com/souqline/checkout-api/internal/notification"
	"github.com/souqline/checkout-api/internal/payment"
)

// ServiceConfig holds the business knobs of the order lifecycle.
type ServiceConfig struct {
	// Currency is the ISO code used for gateway charges.
	Currency string
	// CancelWindow bounds owner cancellation, measured from creation time.
	CancelWindow time.Duration
}

// Service is the order lifecycle orchestrator and state machine. It owns
// every order mutation; nothing else writes the aggregate.
type Service struct {
	cfg       ServiceConfig
	orders    Repository
	products  product.Repository
	carts     cart.Repository
	coupons   coupon.Repository
	validator coupon.Validator
	reserver  *inventory.Reserver
	gateways  map[PaymentMethod]payment.Gateway
	sink      notification.Sink

	now   func() time.Time
	newID func() string
}

// NewService wires the order lifecycle with its collaborators.
func NewService(
	cfg ServiceConfig,
	orders Repository,
	products product.Repository,
	carts cart.Repository,
	coupons coupon.Repository,
	validator coupon.Validator,
	reserver *inventory.Reserver,
	gateways map[PaymentMethod]payment.Gateway,
	sink notification.Sink,
) *Service {
	if cfg.CancelWindow <= 0 {
		cfg.CancelWindow = 24 * time.Hour
	}
	return &Service{
		cfg:       cfg,
		orders:    orders,
		products:  products,
		carts:     carts,
		coupons:   coupons,
		validator: validator,
		reserver:  reserver,
		gateways:  gateways,
		sink:      sink,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// CreateRequest is the input for a single-product order.
type CreateRequest struct {
	User          user.User
	ProductID     string
	Quantity      int
	CouponCode    string
	PaymentMethod PaymentMethod
	Shipping      Address
	PhoneNumbers  []string
}

// ConvertCartRequest is the input for converting the user's persisted cart
// into an order.
type ConvertCartRequest struct {
	User          user.User
	CouponCode    string
	PaymentMethod PaymentMethod
	Shipping      Address
	PhoneNumbers  []string
}

// PaymentRefs are the gateway handles returned by InitiatePayment.
type PaymentRefs struct {
	CheckoutSessionID string
	PaymentIntentID   string
}

// Callback is the payload the gateway webhook echoes back: the order id
// from the intent metadata and the intent reference itself.
type Callback struct {
	OrderID  string
	IntentID string
}

// Create places a single-product order: validate coupon, price, reserve
// stock, persist, count coupon usage, notify. On any failure before the
// order is persisted nothing is mutated; a reservation that cannot be
// persisted is released before returning.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	disc, err := s.resolveCoupon(ctx, req.CouponCode, req.User.ID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}

	// Unit price snapshot taken now and frozen onto the order.
	items := []pricing.LineItem{{
		ProductID: p.ID,
		Title:     p.Title,
		UnitPrice: p.Price,
		Quantity:  req.Quantity,
	}}

	return s.place(ctx, req.User, items, disc, req.CouponCode, req.PaymentMethod, req.Shipping, req.PhoneNumbers, nil)
}

// ConvertCart places an order from the user's persisted cart, using the
// cart's snapshotted prices, and deletes the cart once the order exists.
func (s *Service) ConvertCart(ctx context.Context, req ConvertCartRequest) (*Order, error) {
	c, err := s.carts.FindByUser(ctx, req.User.ID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}

	disc, err := s.resolveCoupon(ctx, req.CouponCode, req.User.ID)
	if err != nil {
		return nil, err
	}

	items := make([]pricing.LineItem, len(c.Items))
	for i, ci := range c.Items {
		items[i] = pricing.LineItem{
			ProductID: ci.ProductID,
			Title:     ci.Title,
			UnitPrice: ci.UnitPrice,
			Quantity:  ci.Quantity,
		}
	}

	afterPersist := func(ctx context.Context) {
		if err := s.carts.Delete(ctx, req.User.ID); err != nil {
			zctx.From(ctx).Error("cart cleanup failed after order creation",
				zap.String("user_id", req.User.ID), zap.Error(err))
		}
	}
	return s.place(ctx, req.User, items, disc, req.CouponCode, req.PaymentMethod, req.Shipping, req.PhoneNumbers, afterPersist)
}

// place runs the shared pipeline: price, reserve, persist, compensate on
// failure, then the post-commit steps (coupon usage, cleanup, notify).
func (s *Service) place(
	ctx context.Context,
	u user.User,
	items []pricing.LineItem,
	disc *coupon.Discount,
	couponCode string,
	method PaymentMethod,
	shipping Address,
	phones []string,
	afterPersist func(context.Context),
) (*Order, error) {
	quote, err := pricing.Price(items, disc)
	if err != nil {
		return nil, err
	}

	lines := make([]inventory.Line, len(items))
	for i, item := range items {
		lines[i] = inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := s.reserver.Reserve(ctx, lines); err != nil {
		return nil, err
	}

	status := StatusPending
	if method == MethodCash {
		status = StatusPlaced
	}

	o := &Order{
		ID:            s.newID(),
		UserID:        u.ID,
		Items:         items,
		Shipping:      shipping,
		PhoneNumbers:  phones,
		ShippingPrice: quote.ShippingPrice,
		TotalPrice:    quote.TotalPrice,
		CouponCode:    couponCode,
		PaymentMethod: method,
		Status:        status,
		CreatedAt:     s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		// Persistence failed after the stock was taken: give it back
		// before surfacing the error.
		s.reserver.Release(ctx, lines)
		return nil, errors.Wrap(err, "persist order")
	}

	// Usage is counted only for a successfully persisted order. A failure
	// here must not undo the order; it is logged for reconciliation.
	if couponCode != "" {
		if err := s.coupons.IncrementUsage(ctx, couponCode, u.ID); err != nil {
			zctx.From(ctx).Error("coupon usage increment failed",
				zap.String("coupon", couponCode),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}

	if afterPersist != nil {
		afterPersist(ctx)
	}

	s.notifyPlaced(ctx, u, o)

	return o, nil
}

// resolveCoupon validates an optional coupon code and returns its discount.
func (s *Service) resolveCoupon(ctx context.Context, code, userID string) (*coupon.Discount, error) {
	if code == "" {
		return nil, nil
	}
	c, err := s.validator.Validate(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	return &c.Discount, nil
}

// InitiatePayment builds a checkout session and payment intent for a
// pending gateway order owned by the requesting user. Re-invocation before
// confirmation supersedes the previous intent; the stale intent is not
// refunded.
func (s *Service) InitiatePayment(ctx context.Context, orderID string, requester user.User) (*PaymentRefs, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != requester.ID {
		return nil, ErrNotOwner
	}
	if o.Status != StatusPending {
		return nil, ErrCannotPay
	}

	gw, ok := s.gateways[o.PaymentMethod]
	if !ok {
		return nil, ErrUnsupportedGateway
	}

	sessionReq := payment.CheckoutSessionRequest{
		OrderID:       o.ID,
		CustomerEmail: requester.Email,
		Currency:      s.cfg.Currency,
	}
	for _, item := range o.Items {
		sessionReq.Lines = append(sessionReq.Lines, payment.Line{
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	if o.CouponCode != "" {
		c, err := s.coupons.FindByCode(ctx, o.CouponCode)
		if err != nil {
			return nil, errors.Wrap(err, "load order coupon")
		}
		ref, err := gw.MirrorCoupon(ctx, c, s.cfg.Currency)
		if err != nil {
			return nil, err
		}
		sessionReq.GatewayCouponID = ref
	}

	sessionRef, err := gw.CreateCheckoutSession(ctx, sessionReq)
	if err != nil {
		return nil, err
	}

	intentRef, err := gw.CreatePaymentIntent(ctx, o.ID, o.TotalPrice, s.cfg.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetPaymentIntent(ctx, o.ID, intentRef); err != nil {
		return nil, errors.Wrap(err, "store payment intent")
	}

	return &PaymentRefs{CheckoutSessionID: sessionRef, PaymentIntentID: intentRef}, nil
}

// ConfirmPayment handles a gateway callback. The gateway may deliver it any
// number of times and it races with user polling, so the paid transition is
// a conditional storage update and a repeat confirmation is a no-op
// success.
func (s *Service) ConfirmPayment(ctx context.Context, cb Callback) (*Order, error) {
	o, err := s.lookupCallbackOrder(ctx, cb)
	if err != nil {
		return nil, err
	}

	if o.IsPaid {
		return o, nil
	}
	if o.Status.Terminal() {
		// A late callback for a cancelled or refunded order must not
		// pull it back to Paid. Answer success so the gateway stops
		// retrying; any captured funds are reconciled out of band.
		return o, nil
	}
	if o.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}

	gw, ok := s.gateways[o.PaymentMethod]
	if !ok {
		return nil, ErrUnsupportedGateway
	}
	if err := gw.ConfirmIntent(ctx, o.PaymentIntentID); err != nil {
		return nil, err
	}

	paidAt := s.now()
	updated, err := s.orders.MarkPaid(ctx, o.ID, paidAt)
	if err != nil {
		return nil, errors.Wrap(err, "mark paid")
	}
	if !updated {
		// A concurrent confirmation won the conditional update. Same
		// outcome, so still a success.
		return s.orders.GetByID(ctx, o.ID)
	}

	o.IsPaid = true
	o.PaidAt = &paidAt
	o.Status = StatusPaid
	return o, nil
}

func (s *Service) lookupCallbackOrder(ctx context.Context, cb Callback) (*Order, error) {
	if cb.OrderID != "" {
		return s.orders.GetByID(ctx, cb.OrderID)
	}
	if cb.IntentID != "" {
		return s.orders.GetByIntent(ctx, cb.IntentID)
	}
	return nil, ErrNotFound
}

// Deliver marks the order delivered by the given agent. Allowed only from
// Placed (cash) or Paid.
func (s *Service) Deliver(ctx context.Context, orderID string, agent user.User) (*Order, error) {
	updated, err := s.orders.MarkDelivered(ctx, orderID, agent.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !updated {
		// Distinguish a missing order from a state conflict.
		if _, err := s.orders.GetByID(ctx, orderID); err != nil {
			return nil, err
		}
		return nil, ErrCannotDeliver
	}
	return s.orders.GetByID(ctx, orderID)
}

// Cancel lets the order's owner cancel within the configured window from
// creation. Reserved stock is not released and a paid intent is not
// refunded here: both remain explicit follow-up operations.
func (s *Service) Cancel(ctx context.Context, orderID string, requester user.User) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != requester.ID {
		return nil, ErrNotOwner
	}
	if o.Status.Terminal() {
		return nil, ErrCannotCancel
	}
	if s.now().Sub(o.CreatedAt) > s.cfg.CancelWindow {
		return nil, ErrCancelWindowElapsed
	}

	updated, err := s.orders.MarkCancelled(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrCannotCancel
	}
	o.Status = StatusCancelled
	return o, nil
}

// Refund refunds a paid order through its gateway. A refund request against
// any other state is rejected before the gateway is contacted.
func (s *Service) Refund(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPaid {
		return nil, ErrCannotRefund
	}
	if o.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}

	gw, ok := s.gateways[o.PaymentMethod]
	if !ok {
		return nil, ErrUnsupportedGateway
	}
	if _, err := gw.RefundIntent(ctx, o.PaymentIntentID); err != nil {
		return nil, err
	}

	updated, err := s.orders.MarkRefunded(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "mark refunded")
	}
	if !updated {
		return nil, ErrCannotRefund
	}
	o.Status = StatusRefunded
	return o, nil
}

// GetForUser returns the order if the requester owns it or holds a staff
// role.
func (s *Service) GetForUser(ctx context.Context, orderID string, requester user.User) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != requester.ID && requester.Role == user.RoleUser {
		return nil, ErrNotOwner
	}
	return o, nil
}

// notifyPlaced renders the invoice and dispatches the confirmation. Sink
// failure degrades the response, never the order: it is logged and
// swallowed.
func (s *Service) notifyPlaced(ctx context.Context, u user.User, o *Order) {
	code := fmt.Sprintf("%s_%s", u.Username, shortID(o.ID))

	lines := make([]notification.InvoiceLine, len(o.Items))
	for i, item := range o.Items {
		lines[i] = notification.InvoiceLine{
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	invoice := notification.RenderInvoice(notification.Invoice{
		OrderCode: code,
		Customer:  u.Username,
		Address:   o.Shipping.Address,
		City:      o.Shipping.City,
		Country:   o.Shipping.Country,
		Date:      o.CreatedAt,
		Lines:     lines,
		Subtotal:  o.ShippingPrice,
		Total:     o.TotalPrice,
	})

	err := s.sink.Send(ctx, notification.Message{
		Recipient:   u.Email,
		Subject:     "Order Confirmation",
		Body:        fmt.Sprintf("Your order %s has been placed. The invoice is attached.", code),
		Attachments: []notification.Attachment{invoice},
	})
	if err != nil {
		zctx.From(ctx).Warn("order confirmation dispatch failed",
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
