// Command coupon-grant bulk-assigns a coupon to users listed in gzipped
// user-id export files (one id per line). Exports from different systems
// overlap heavily, so ids are deduplicated while streaming: a bloom filter
// answers "definitely unseen" cheaply and only possible repeats pay for the
// exact check.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/souqline/checkout-api/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

func main() {
	var (
		databaseURL string
		couponCode  string
		maxUsage    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponCode, "coupon", "", "coupon code to grant")
	flag.IntVar(&maxUsage, "max-usage", 1, "usage quota per granted user")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one gzipped user-id export file is required")
		os.Exit(1)
	}
	if couponCode == "" {
		slog.Error("coupon code is required: set --coupon")
		os.Exit(1)
	}
	if maxUsage < 1 {
		slog.Error("max-usage must be at least 1")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponCode, maxUsage, files); err != nil {
		slog.Error("coupon grant failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon grant completed successfully")
}

func run(ctx context.Context, databaseURL, couponCode string, maxUsage int, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("collecting user ids", slog.Int("files", len(files)))

	userIDs, err := collectUserIDs(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect user ids")
	}

	slog.Info("unique user ids collected", slog.Int("count", len(userIDs)))

	if len(userIDs) == 0 {
		slog.Info("no users to grant")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeGrants(ctx, pool, couponCode, maxUsage, userIDs); err != nil {
		return errors.Wrap(err, "write grants")
	}

	return nil
}

// dedupe keeps the set of user ids seen so far. The bloom filter screens out
// the common "first sighting" case without touching the mutex-guarded map.
type dedupe struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}
}

func newDedupe() *dedupe {
	return &dedupe{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		seen:   make(map[string]struct{}),
	}
}

// add reports whether id was unseen until now.
func (d *dedupe) add(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestString(id) {
		if _, ok := d.seen[id]; ok {
			return false
		}
	}
	d.filter.AddString(id)
	d.seen[id] = struct{}{}
	return true
}

// collectUserIDs streams every export file concurrently and returns the
// deduplicated set of user ids.
func collectUserIDs(ctx context.Context, files []string) ([]string, error) {
	d := newDedupe()

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(collectFromFile(ctx, i, f, d))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(d.seen))
	for id := range d.seen {
		ids = append(ids, id)
	}
	return ids, nil
}

func collectFromFile(ctx context.Context, idx int, path string, d *dedupe) func() error {
	return func() error {
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			id := strings.TrimSpace(line)
			if id == "" {
				return
			}
			d.add(id)
			count++
			if count%progressEvery == 0 {
				slog.Info("progress",
					slog.Int("file", idx+1),
					slog.Uint64("lines", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "stream file %d", idx+1)
		}

		slog.Info("file complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_lines", count),
		)
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeGrants inserts one assignment per known user. Exports routinely list
// ids that never registered here, so the insert joins against users and
// skips the rest; existing grants keep their usage counters.
func writeGrants(ctx context.Context, pool *pgxpool.Pool, couponCode string, maxUsage int, userIDs []string) error {
	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, couponCode,
	).Scan(&exists); err != nil {
		return errors.Wrap(err, "check coupon")
	}
	if !exists {
		return errors.Errorf("coupon %s does not exist", couponCode)
	}

	slog.Info("writing grants", slog.String("coupon", couponCode), slog.Int("users", len(userIDs)))

	const batchSize = 10_000
	var granted int64
	for start := 0; start < len(userIDs); start += batchSize {
		end := min(start+batchSize, len(userIDs))

		tag, err := pool.Exec(ctx, `
			INSERT INTO coupon_assignments (coupon_code, user_id, max_usage)
			SELECT $1, u.id, $2
			FROM users u
			WHERE u.id = ANY($3)
			ON CONFLICT (coupon_code, user_id) DO NOTHING
		`, couponCode, maxUsage, userIDs[start:end])
		if err != nil {
			return errors.Wrapf(err, "insert grants batch starting at %d", start)
		}
		granted += tag.RowsAffected()

		slog.Info("write progress", slog.Int("processed", end), slog.Int("total", len(userIDs)))
	}

	slog.Info("grants written", slog.Int64("granted", granted))
	return nil
}
