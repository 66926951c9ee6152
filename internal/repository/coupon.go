package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_kind, amount, from_date, to_date, status,
		added_by, disabled_by, disabled_at, enabled_by, enabled_at, created_at
		FROM coupons WHERE code = $1`

	listCouponsSQL = `SELECT code, discount_kind, amount, from_date, to_date, status,
		added_by, disabled_by, disabled_at, enabled_by, enabled_at, created_at
		FROM coupons ORDER BY created_at DESC`

	insertCouponSQL = `INSERT INTO coupons (code, discount_kind, amount, from_date, to_date, status, added_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertAssignmentSQL = `INSERT INTO coupon_assignments (coupon_code, user_id, max_usage, usage_count)
		VALUES ($1, $2, $3, 0)`

	disableCouponSQL = `UPDATE coupons
		SET status = 'expired', disabled_by = $2, disabled_at = $3, enabled_by = NULL, enabled_at = NULL
		WHERE code = $1`

	enableCouponSQL = `UPDATE coupons
		SET status = 'valid', enabled_by = $2, enabled_at = $3, disabled_by = NULL, disabled_at = NULL
		WHERE code = $1`

	getAssignmentSQL = `SELECT coupon_code, user_id, max_usage, usage_count
		FROM coupon_assignments WHERE coupon_code = $1 AND user_id = $2`

	// Conditional increment: concurrent checkouts by the same user race on
	// this row, and the quota check must ride in the same statement.
	incrementUsageSQL = `UPDATE coupon_assignments
		SET usage_count = usage_count + 1
		WHERE coupon_code = $1 AND user_id = $2 AND usage_count < max_usage`
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its exact, case-sensitive code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// Create inserts the coupon and its grants in one transaction, so a failed
// grant never leaves a grantless coupon behind.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon, grants []coupon.Assignment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning coupon create: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, insertCouponSQL,
		c.Code, string(c.Discount.Kind), c.Discount.Amount,
		c.FromDate, c.ToDate, string(c.Status), c.AddedBy, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}

	for _, g := range grants {
		if _, err := tx.Exec(ctx, insertAssignmentSQL, g.CouponCode, g.UserID, g.MaxUsage); err != nil {
			return fmt.Errorf("inserting assignment for %q/%q: %w", g.CouponCode, g.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing coupon create: %w", err)
	}
	return nil
}

// SetStatus flips the operator flag, stamping the matching audit pair and
// clearing the opposite one.
func (r *CouponRepository) SetStatus(ctx context.Context, code string, status coupon.Status, by string, at time.Time) error {
	sql := enableCouponSQL
	if status == coupon.StatusExpired {
		sql = disableCouponSQL
	}
	tag, err := r.pool.Exec(ctx, sql, code, by, at)
	if err != nil {
		return fmt.Errorf("setting status for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// FindAssignment returns the (coupon, user) grant.
func (r *CouponRepository) FindAssignment(ctx context.Context, code, userID string) (*coupon.Assignment, error) {
	rows, err := r.pool.Query(ctx, getAssignmentSQL, code, userID)
	if err != nil {
		return nil, fmt.Errorf("finding assignment %q/%q: %w", code, userID, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAssignment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotAssigned
		}
		return nil, fmt.Errorf("finding assignment %q/%q: %w", code, userID, err)
	}
	return &a, nil
}

// IncrementUsage bumps the grant's usage counter iff quota remains.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code, userID string) error {
	tag, err := r.pool.Exec(ctx, incrementUsageSQL, code, userID)
	if err != nil {
		return fmt.Errorf("incrementing usage for %q/%q: %w", code, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageExceeded
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		kind       string
		amount     decimal.Decimal
		status     string
		disabledBy *string
		enabledBy  *string
	)
	err := row.Scan(
		&c.Code, &kind, &amount, &c.FromDate, &c.ToDate, &status,
		&c.AddedBy, &disabledBy, &c.DisabledAt, &enabledBy, &c.EnabledAt, &c.CreatedAt,
	)
	c.Discount = coupon.Discount{Kind: coupon.DiscountKind(kind), Amount: amount}
	c.Status = coupon.Status(status)
	if disabledBy != nil {
		c.DisabledBy = *disabledBy
	}
	if enabledBy != nil {
		c.EnabledBy = *enabledBy
	}
	return c, err
}

func scanAssignment(row pgx.CollectableRow) (coupon.Assignment, error) {
	var (
		a        coupon.Assignment
		maxUsage int32
		usage    int32
	)
	err := row.Scan(&a.CouponCode, &a.UserID, &maxUsage, &usage)
	a.MaxUsage = int(maxUsage)
	a.UsageCount = int(usage)
	return a, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
