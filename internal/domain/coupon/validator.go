package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator checks whether a user may redeem a coupon code right now and
// resolves the code into the full Coupon for downstream pricing.
type Validator interface {
	Validate(ctx context.Context, code, userID string) (*Coupon, error)
}

// RepoValidator implements Validator against a Repository. Checks run in a
// fixed order and short-circuit on the first failure; the usage counter is
// not touched here — the order lifecycle increments it only after the order
// has been persisted.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate resolves code for userID. Failure order: unknown code, expired
// (operator flag or past ToDate — either alone rejects), not yet started,
// no assignment, quota exhausted.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()

	// The status flag lags behind the window: a coupon past ToDate may
	// still read "valid" until an operator flips it. Reject on either.
	if c.Status == StatusExpired || now.After(c.ToDate) {
		return nil, ErrExpired
	}
	if now.Before(c.FromDate) {
		return nil, ErrNotStarted
	}

	a, err := v.repo.FindAssignment(ctx, code, userID)
	if err != nil {
		if errors.Is(err, ErrNotAssigned) {
			return nil, ErrNotAssigned
		}
		return nil, errors.Wrap(err, "lookup coupon assignment")
	}
	if a.UsageCount >= a.MaxUsage {
		return nil, ErrUsageExceeded
	}

	return c, nil
}
