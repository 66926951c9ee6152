// Command seed-db prepares a database for local development: it runs
// migrations, then upserts demo users with API keys, a product catalog and a
// granted coupon.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/souqline/checkout-api/internal/repository"
)

type productJSON struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type seedUser struct {
	id       string
	username string
	email    string
	role     string
	apiKey   string
}

// One key per role so every surface of the API can be exercised locally.
var seedUsers = []seedUser{
	{id: "user-demo", username: "demo", email: "demo@example.com", role: "user", apiKey: "souq_demo_key"},
	{id: "user-admin", username: "admin", email: "admin@example.com", role: "admin", apiKey: "souq_admin_key"},
	{id: "user-courier", username: "courier", email: "courier@example.com", role: "delivery", apiKey: "souq_courier_key"},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SOUQ_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SOUQ_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsersAndKeys(ctx, pool, pepper); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupon(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupon")
	}

	return nil
}

func seedUsersAndKeys(ctx context.Context, pool *pgxpool.Pool, pepper string) error {
	slog.Info("upserting demo users", slog.Int("count", len(seedUsers)))

	for _, u := range seedUsers {
		if _, err := pool.Exec(ctx, `
			INSERT INTO users (id, username, email, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET username = $2, email = $3, role = $4
		`, u.id, u.username, u.email, u.role); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.id)
		}

		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(u.apiKey))
		keyHash := hex.EncodeToString(mac.Sum(nil))

		if _, err := pool.Exec(ctx, `
			INSERT INTO api_keys (id, key_hash, user_id, name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET key_hash = $2
		`, "key-"+u.id, keyHash, u.id, u.username+" dev key"); err != nil {
			return errors.Wrapf(err, "upsert api key for %s", u.id)
		}

		slog.Info("upserted user", slog.String("id", u.id), slog.String("role", u.role))
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, `
			INSERT INTO products (id, title, price, stock)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET title = $2, price = $3, stock = $4
		`, p.ID, p.Title, p.Price, p.Stock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("title", p.Title))
	}

	return nil
}

func seedCoupon(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupon")

	now := time.Now()
	if _, err := pool.Exec(ctx, `
		INSERT INTO coupons (code, discount_kind, amount, from_date, to_date, status, added_by)
		VALUES ('WELCOME10', 'percentage', 10, $1, $2, 'valid', 'user-admin')
		ON CONFLICT (code) DO NOTHING
	`, now, now.AddDate(1, 0, 0)); err != nil {
		return errors.Wrap(err, "upsert coupon")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO coupon_assignments (coupon_code, user_id, max_usage)
		VALUES ('WELCOME10', 'user-demo', 3)
		ON CONFLICT (coupon_code, user_id) DO NOTHING
	`); err != nil {
		return errors.Wrap(err, "upsert coupon assignment")
	}

	slog.Info("seeded coupon", slog.String("code", "WELCOME10"))

	// Single-use grant, used to exercise the usage quota.
	if _, err := pool.Exec(ctx, `
		INSERT INTO coupons (code, discount_kind, amount, from_date, to_date, status, added_by)
		VALUES ('FLASH5', 'fixed', 5, $1, $2, 'valid', 'user-admin')
		ON CONFLICT (code) DO NOTHING
	`, now, now.AddDate(1, 0, 0)); err != nil {
		return errors.Wrap(err, "upsert coupon")
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO coupon_assignments (coupon_code, user_id, max_usage)
		VALUES ('FLASH5', 'user-demo', 1)
		ON CONFLICT (coupon_code, user_id) DO NOTHING
	`); err != nil {
		return errors.Wrap(err, "upsert coupon assignment")
	}

	slog.Info("seeded coupon", slog.String("code", "FLASH5"))

	return nil
}
