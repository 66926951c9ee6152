// Package user holds the authenticated-caller model consumed by the order
// engine. Registration, login and profile management live in a separate
// service; this API only resolves API keys to an existing user.
package user

import (
	"context"

	"github.com/go-faster/errors"
)

// Role enumerates the access levels known to the checkout API.
type Role string

const (
	// RoleUser is a regular customer placing orders.
	RoleUser Role = "user"
	// RoleAdmin manages coupons and issues refunds.
	RoleAdmin Role = "admin"
	// RoleDelivery marks orders as delivered.
	RoleDelivery Role = "delivery"
)

// ErrNotFound is returned when no user matches the given credential.
var ErrNotFound = errors.New("user not found")

// User is the auth context attached to every authenticated request.
type User struct {
	ID       string
	Role     Role
	Email    string
	Username string
}

// Repository resolves users from credentials.
type Repository interface {
	// FindByKeyHash returns the user owning the API key with the given
	// HMAC-SHA256 hash, or ErrNotFound.
	FindByKeyHash(ctx context.Context, hash string) (*User, error)
}
