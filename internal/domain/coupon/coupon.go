package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountKind enumerates the supported coupon discount strategies.
type DiscountKind string

const (
	// KindFixed subtracts a fixed monetary amount from the order subtotal.
	KindFixed DiscountKind = "fixed"
	// KindPercentage subtracts a percentage of the order subtotal.
	KindPercentage DiscountKind = "percentage"
)

// Status is the operator-controlled validity flag. A coupon can age past its
// ToDate before anyone flips the flag, so the window check is applied
// independently: either signal alone invalidates the coupon.
type Status string

const (
	StatusValid   Status = "valid"
	StatusExpired Status = "expired"
)

// Validation failures, one per check, each carrying a distinct caller-facing
// reason. None of them has side effects.
var (
	ErrNotFound      = errors.New("coupon code is invalid")
	ErrExpired       = errors.New("coupon is expired")
	ErrNotStarted    = errors.New("coupon is not started yet")
	ErrNotAssigned   = errors.New("coupon is not assigned to you")
	ErrUsageExceeded = errors.New("exceeded usage count for this coupon")
	// ErrDuplicateCode is returned by Create when the code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Discount is the tagged union resolved once by the validator and passed
// immutably to pricing and the payment gateway. Amount is a monetary value
// for KindFixed and a percentage in (0, 100] for KindPercentage.
type Discount struct {
	Kind   DiscountKind
	Amount decimal.Decimal
}

// Coupon is a discount code with a validity window and an audit trail of
// who created, disabled and re-enabled it.
type Coupon struct {
	Code       string
	Discount   Discount
	FromDate   time.Time
	ToDate     time.Time
	Status     Status
	AddedBy    string
	DisabledBy string
	DisabledAt *time.Time
	EnabledBy  string
	EnabledAt  *time.Time
	CreatedAt  time.Time
}

// Assignment is a per-user grant of a coupon with a usage quota. A user may
// use a coupon only through an assignment; there is no public coupon.
type Assignment struct {
	CouponCode string
	UserID     string
	MaxUsage   int
	UsageCount int
}

// Repository provides coupon and assignment storage.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// Create persists the coupon together with its user grants in one
	// transaction. Returns ErrDuplicateCode when the code is taken.
	Create(ctx context.Context, c *Coupon, grants []Assignment) error

	// SetStatus flips the operator flag and stamps the audit fields.
	SetStatus(ctx context.Context, code string, status Status, by string, at time.Time) error

	List(ctx context.Context) ([]Coupon, error)

	FindAssignment(ctx context.Context, code, userID string) (*Assignment, error)

	// IncrementUsage atomically performs "usage_count += 1 if usage_count <
	// max_usage" for the (code, user) grant. Returns ErrUsageExceeded when
	// the quota is already exhausted. Concurrent checkouts by the same user
	// race on this row, so implementations must not read-then-write.
	IncrementUsage(ctx context.Context, code, userID string) error
}
