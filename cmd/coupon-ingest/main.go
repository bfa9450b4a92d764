// Command coupon-ingest bulk-loads coupon definitions from gzip-compressed
// CSV files into the storefront database.
//
// Each line is code,discount_type,discount_value,expires_at[,usage_limit[,is_active]].
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		batchSize   int
		capacity    uint
		fpRate      float64
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz coupon files, read in name order")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "coupons per database round trip")
	flag.UintVar(&capacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.Float64Var(&fpRate, "bloom-fp-rate", 0.001, "bloom filter false positive rate")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, batchSize, capacity, fpRate); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, batchSize int, capacity uint, fpRate float64) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list input files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}
	slices.Sort(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	in := &ingester{
		files:     files,
		sink:      postgres.NewCouponRepository(pool),
		batchSize: max(batchSize, 1),
		capacity:  capacity,
		fpRate:    fpRate,
		now:       time.Now().UTC(),
	}
	stats, err := in.run(ctx)
	slog.Info("ingest summary",
		slog.Int("read", stats.Read),
		slog.Int("written", stats.Written),
		slog.Int("invalid", stats.Invalid),
		slog.Int("duplicates", stats.Duplicates),
	)
	return err
}
