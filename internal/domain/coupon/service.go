package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Creation failures surfaced to the admin API.
var (
	ErrAmountNotPositive = errors.New("coupon amount must be positive")
	ErrPercentageRange   = errors.New("percentage must be in (0, 100]")
	ErrWindowInverted    = errors.New("coupon toDate must be after fromDate")
	ErrNoGrants          = errors.New("coupon requires at least one user grant")
	ErrGrantQuota        = errors.New("grant maxUsage must be at least 1")
)

var hundred = decimal.NewFromInt(100)

// Grant is a creation-time request to assign the coupon to a user.
type Grant struct {
	UserID   string
	MaxUsage int
}

// CreateRequest holds the input for creating a coupon with its grants.
type CreateRequest struct {
	Code     string
	Discount Discount
	FromDate time.Time
	ToDate   time.Time
	AddedBy  string
	Grants   []Grant
}

// Service implements coupon administration: creation with per-user grants
// and operator enable/disable with audit stamps.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon admin Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates the request and persists the coupon with its grants.
// The discount kind is a tagged union, so "both fixed and percentage" is
// unrepresentable; amount bounds still need checking per kind.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	if !req.Discount.Amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}
	if req.Discount.Kind == KindPercentage && req.Discount.Amount.GreaterThan(hundred) {
		return nil, ErrPercentageRange
	}
	if !req.ToDate.After(req.FromDate) {
		return nil, ErrWindowInverted
	}
	if len(req.Grants) == 0 {
		return nil, ErrNoGrants
	}

	grants := make([]Assignment, len(req.Grants))
	for i, g := range req.Grants {
		if g.MaxUsage < 1 {
			return nil, ErrGrantQuota
		}
		grants[i] = Assignment{
			CouponCode: req.Code,
			UserID:     g.UserID,
			MaxUsage:   g.MaxUsage,
		}
	}

	c := &Coupon{
		Code:      req.Code,
		Discount:  req.Discount,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
		Status:    StatusValid,
		AddedBy:   req.AddedBy,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, c, grants); err != nil {
		return nil, err
	}
	return c, nil
}

// Disable flips the coupon to expired, recording who did it and when.
func (s *Service) Disable(ctx context.Context, code, by string) error {
	return s.repo.SetStatus(ctx, code, StatusExpired, by, s.now())
}

// Enable flips a previously disabled coupon back to valid. The window check
// in the validator still applies, so enabling a coupon past its ToDate does
// not make it redeemable.
func (s *Service) Enable(ctx context.Context, code, by string) error {
	return s.repo.SetStatus(ctx, code, StatusValid, by, s.now())
}

// GetByCode returns the coupon for the given code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	return s.repo.FindByCode(ctx, code)
}

// List returns all coupons.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}
