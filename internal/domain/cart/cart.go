// Package cart models the persisted shopping cart consumed by cart checkout.
// Cart building (add/remove items) is owned by another service; the order
// engine only reads a cart and deletes it once converted to an order.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the user has no cart.
var ErrNotFound = errors.New("cart not found")

// Item is a cart line with the unit price snapshotted when the item was
// added. Checkout uses this snapshot as-is, never the live catalog price.
type Item struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Cart is a user's pending cart.
type Cart struct {
	UserID   string
	Items    []Item
	Subtotal decimal.Decimal
}

// Repository defines the cart operations the order engine needs.
type Repository interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	Delete(ctx context.Context, userID string) error
}
