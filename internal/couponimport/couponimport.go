// Package couponimport finds promo codes that appear in at least two of a
// set of large gzip-compressed code lists and turns them into coupons.
//
// Each file is streamed twice. The first pass builds one bloom filter per
// file. The second pass records, per file, the codes that hit another file's
// filter. A code is accepted when at least MinFiles files report it, which
// removes bloom false positives: a false hit is only ever reported by the
// file that really contains the code.
package couponimport

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/atelier/internal/domain/coupon"
)

// Config tunes code discovery.
type Config struct {
	// Capacity is the expected number of codes per file.
	Capacity uint
	// FalsePositiveRate of each bloom filter.
	FalsePositiveRate float64
	// Codes outside [MinLen, MaxLen] are ignored.
	MinLen int
	MaxLen int
	// MinFiles is how many files must contain a code.
	MinFiles int
	// ProgressEvery logs progress every N codes. Zero disables it.
	ProgressEvery uint64
}

// DefaultConfig matches the production code lists: three files of up to
// 120M codes each.
func DefaultConfig() Config {
	return Config{
		Capacity:          120_000_000,
		FalsePositiveRate: 0.001,
		MinLen:            8,
		MaxLen:            10,
		MinFiles:          2,
		ProgressEvery:     10_000_000,
	}
}

// maxFiles bounds the per-code file bitmask.
const maxFiles = bits.UintSize

// Finder runs the two-pass discovery.
type Finder struct {
	cfg Config
	lg  *zap.Logger
}

// NewFinder creates a Finder.
func NewFinder(lg *zap.Logger, cfg Config) *Finder {
	return &Finder{cfg: cfg, lg: lg}
}

// Find returns the normalised codes contained in at least MinFiles of files,
// sorted.
func (f *Finder) Find(ctx context.Context, files []string) ([]string, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files supported, got %d", maxFiles, len(files))
	}
	if len(files) < f.cfg.MinFiles {
		return nil, errors.Errorf("need at least %d files, got %d", f.cfg.MinFiles, len(files))
	}

	f.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := f.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	f.lg.Info("Pass 2: finding codes present in other files")
	masks, err := f.collectCandidates(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	var codes []string
	for code, mask := range masks {
		if bits.OnesCount(mask) >= f.cfg.MinFiles {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	return codes, nil
}

func (f *Finder) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(f.cfg.Capacity, f.cfg.FalsePositiveRate)
			n, err := f.scan(ctx, path, func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			f.lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collectCandidates returns, for every code that hit another file's filter,
// the bitmask of files that reported it.
func (f *Finder) collectCandidates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	perFile := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			n, err := f.scan(ctx, path, func(code string) {
				for j, other := range filters {
					if j != i && other.TestString(code) {
						found[code] = struct{}{}
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			f.lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Uint64("codes", n),
				zap.Int("candidates", len(found)),
			)
			perFile[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for i, found := range perFile {
		bit := uint(1) << uint(i)
		for code := range found {
			merged[code] |= bit
		}
	}
	return merged, nil
}

// scan streams the normalised, length-filtered codes of a gzip file to fn
// and returns how many it passed on.
func (f *Finder) scan(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = file.Close() }()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var n uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if len(code) < f.cfg.MinLen || len(code) > f.cfg.MaxLen {
			continue
		}
		fn(code)
		n++
		if f.cfg.ProgressEvery > 0 && n%f.cfg.ProgressEvery == 0 {
			f.lg.Info("Scan progress", zap.String("file", path), zap.Uint64("codes", n))
		}
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}
