// Package inventory implements stock reservation for order line items.
//
// The only concurrency-safety mechanism for stock is the conditional
// decrement in product.Repository: this package never reads a stock count
// and decides on it. Its job is ordering and compensation — walking the
// lines, stopping at the first failure, and restoring every decrement
// already made so the caller never observes a partial reservation.
package inventory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/souqline/checkout-api/internal/domain/product"
)

// InsufficientStockError reports which product could not be reserved.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock for product " + e.ProductID
}

// Line is a reservation request for one product.
type Line struct {
	ProductID string
	Quantity  int
}

// Reserver reserves and releases stock for sets of order lines.
type Reserver struct {
	products product.Repository
}

// NewReserver creates a Reserver over the given product repository.
func NewReserver(products product.Repository) *Reserver {
	return &Reserver{products: products}
}

// Reserve decrements stock for every line. On the first failure it restores
// the lines already decremented and returns *InsufficientStockError (or the
// underlying storage error). Reservations are released only by an explicit
// Release call — never implicitly.
func (r *Reserver) Reserve(ctx context.Context, lines []Line) error {
	for i, line := range lines {
		err := r.products.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err == nil {
			continue
		}

		r.Release(ctx, lines[:i])

		if errors.Is(err, product.ErrInsufficientStock) || errors.Is(err, product.ErrNotFound) {
			return &InsufficientStockError{ProductID: line.ProductID}
		}
		return errors.Wrapf(err, "reserve stock for product %s", line.ProductID)
	}
	return nil
}

// Release returns previously reserved units. A failed increment is logged
// and skipped rather than aborting the rest: leaving the remaining lines
// unreleased would lose more stock than the one that failed.
func (r *Reserver) Release(ctx context.Context, lines []Line) {
	for _, line := range lines {
		if err := r.products.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			zctx.From(ctx).Error("stock release failed, needs reconciliation",
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
		}
	}
}
