// Package pricing computes order totals. It is pure: no storage access and
// no side effects, so the order lifecycle can call it before anything is
// reserved or persisted.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/coupon"
)

// Validation and policy failures.
var (
	ErrNoItems         = errors.New("order requires at least one line item")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrCouponExceedsTotal rejects a fixed coupon worth more than the
	// subtotal. The discount is never silently clamped.
	ErrCouponExceedsTotal = errors.New("coupon amount exceeds order total")
)

var hundred = decimal.NewFromInt(100)

// LineItem is a priced order line. UnitPrice is the snapshot taken at
// invocation time (live catalog lookup or cart snapshot); once the quote is
// frozen onto an order, later catalog changes never affect it.
type LineItem struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Quote is the result of pricing an order. ShippingPrice is the sum of line
// totals before any discount; TotalPrice is what the customer pays.
// TotalPrice <= ShippingPrice always, with equality iff no discount applied.
type Quote struct {
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Price computes the quote for the given lines and optional discount.
// Percentage discounts round half-up to two decimal places so the stored
// total matches what the gateway charges.
func Price(items []LineItem, d *coupon.Discount) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, ErrNoItems
	}

	shipping := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 {
			return Quote{}, ErrInvalidQuantity
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		shipping = shipping.Add(item.UnitPrice.Mul(qty))
	}

	total := shipping
	if d != nil {
		switch d.Kind {
		case coupon.KindFixed:
			if d.Amount.GreaterThan(shipping) {
				return Quote{}, ErrCouponExceedsTotal
			}
			total = shipping.Sub(d.Amount)
		case coupon.KindPercentage:
			discount := shipping.Mul(d.Amount).Div(hundred)
			// decimal.Round rounds half away from zero, which is
			// half-up for the non-negative amounts handled here.
			total = shipping.Sub(discount).Round(2)
		default:
			return Quote{}, errors.Errorf("unsupported discount kind: %q", d.Kind)
		}
	}

	return Quote{
		ShippingPrice: shipping.Round(2),
		TotalPrice:    total,
	}, nil
}
