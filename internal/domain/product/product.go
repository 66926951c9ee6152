package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a conditional stock decrement
	// finds fewer units than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is the slice of the catalog the order engine reads: identity,
// display title, current price and available stock.
type Product struct {
	ID    string
	Title string
	Price decimal.Decimal
	Stock int
}

// Repository defines catalog reads and the two inventory mutations the
// reservation step relies on.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)

	// DecrementStock atomically performs "stock -= qty if stock >= qty".
	// It returns ErrInsufficientStock when the condition fails and
	// ErrNotFound when the product does not exist. Implementations must
	// not read-then-write: the check and the decrement are one statement.
	DecrementStock(ctx context.Context, id string, qty int) error

	// IncrementStock returns previously reserved units to the shelf. Used
	// only as the compensating half of a failed or abandoned reservation.
	IncrementStock(ctx context.Context, id string, qty int) error
}
