// Command coupon-import loads promo codes present in at least two of the
// couponbaseN.gz code lists into the coupons table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/couponimport"
	"github.com/xenking/atelier/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		numFiles    int
		databaseURL string
		validFor    time.Duration
		batchSize   int
		dryRun      bool
	)

	cfg := couponimport.DefaultConfig()

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.IntVar(&numFiles, "files", 3, "number of couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.DurationVar(&validFor, "valid-for", 0, "coupon lifetime from now, 0 for no expiry")
	flag.IntVar(&batchSize, "batch", 1000, "coupons per upsert batch")
	flag.BoolVar(&dryRun, "dry-run", false, "only report the codes found")
	flag.UintVar(&cfg.Capacity, "capacity", cfg.Capacity, "expected codes per file")
	flag.IntVar(&cfg.MinFiles, "min-files", cfg.MinFiles, "files a code must appear in")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg, files, databaseURL, validFor, batchSize, dryRun); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed")
}

func run(
	ctx context.Context,
	lg *zap.Logger,
	cfg couponimport.Config,
	files []string,
	databaseURL string,
	validFor time.Duration,
	batchSize int,
	dryRun bool,
) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	codes, err := couponimport.NewFinder(lg, cfg).Find(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))
	if dryRun {
		for _, code := range codes {
			fmt.Println(code)
		}
		return nil
	}
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	coupons := couponimport.Coupons(codes, time.Now().UTC(), validFor)
	if err := couponimport.Write(ctx, lg, postgres.NewCouponRepository(pool), coupons, batchSize); err != nil {
		return errors.Wrap(err, "write coupons")
	}
	return nil
}
