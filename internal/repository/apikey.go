package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqline/checkout-api/internal/domain/user"
)

const findUserByKeyHashSQL = `SELECT u.id, u.role, u.email, u.username
	FROM api_keys k JOIN users u ON u.id = k.user_id
	WHERE k.key_hash = $1`

var _ user.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository resolves HMAC-hashed API keys to their owning users.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByKeyHash returns the user owning the key with the given hash.
func (r *APIKeyRepository) FindByKeyHash(ctx context.Context, hash string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, findUserByKeyHashSQL, hash)
	if err != nil {
		return nil, fmt.Errorf("finding api key: %w", err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (user.User, error) {
		var (
			u    user.User
			role string
		)
		err := row.Scan(&u.ID, &role, &u.Email, &u.Username)
		u.Role = user.Role(role)
		return u, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &u, nil
}
