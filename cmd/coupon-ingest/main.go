// Command coupon-ingest imports promotional codes from partner feed dumps.
// A code counts as genuine only when at least two of the three feed files
// carry it; codes seen in a single file are noise. The dumps are far too
// large to hold in memory, so each file is streamed twice: the first pass
// builds one bloom filter per file, the second re-streams every file and
// keeps codes that some other file's filter also claims.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rivamart/storefront/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	feedCount     = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	writeBatch    = 500
)

const upsertCouponSQL = `INSERT INTO coupons (code, discount_percent, active, min_order_value, single_use, description)
	VALUES ($1, $2, true, $3, $4, $5)
	ON CONFLICT (code) DO UPDATE SET
		discount_percent = EXCLUDED.discount_percent, active = true,
		min_order_value = EXCLUDED.min_order_value, single_use = EXCLUDED.single_use,
		description = EXCLUDED.description`

// codeRule is the discount attached to a known promotional code. Codes
// missing from the table fall back to defaultRule.
type codeRule struct {
	percent       int64
	minOrderValue int64
	singleUse     bool
	description   string
}

var codeRules = map[string]codeRule{
	"BIRTHDAY": {percent: 25, singleUse: true, description: "Birthday special: 25% off"},
	"FIFTYOFF": {percent: 50, minOrderValue: 2000, description: "50% off orders over 2000"},
	"GNULINUX": {percent: 15, description: "Open source discount: 15% off"},
	"HAPPYHRS": {percent: 18, description: "Happy Hours: 18% off"},
	"NEWRIVAL": {percent: 12, singleUse: true, description: "Welcome: 12% off your first order"},
}

var defaultRule = codeRule{
	percent:     10,
	description: "Valid promo code: 10% off",
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponfeedN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	feeds := make([]string, feedCount)
	for i := range feedCount {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("couponfeed%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	slog.Info("pass 1: building per-feed bloom filters", slog.Int("feeds", feedCount))

	filters, err := buildFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build filters")
	}

	slog.Info("pass 2: intersecting feeds")

	codes, err := intersectFeeds(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "intersect feeds")
	}

	slog.Info("genuine codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return errors.Wrap(writeCoupons(ctx, pool, codes), "write coupons")
}

// buildFilters streams every feed once and fills one bloom filter per feed.
func buildFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var seen uint64

			err := streamFeed(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				filter.AddString(code)
				seen++
				if seen%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("feed", i+1), slog.Uint64("codes", seen))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "filter feed %d", i+1)
			}

			slog.Info("pass 1 feed done", slog.Int("feed", i+1), slog.Uint64("codes", seen))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// intersectFeeds re-streams every feed, testing each code against the other
// feeds' filters, and returns codes present in two or more feeds. Presence is
// tracked as a per-feed bitmask so the popcount gives the feed count.
func intersectFeeds(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFeed := make([]map[string]uint, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			candidates := make(map[string]uint)
			feedBit := uint(1) << uint(i)
			var seen uint64

			err := streamFeed(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}

				seen++
				if seen%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("feed", i+1), slog.Uint64("codes", seen))
				}

				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						candidates[code] |= feedBit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan feed %d", i+1)
			}

			slog.Info("pass 2 feed done",
				slog.Int("feed", i+1),
				slog.Uint64("codes", seen),
				slog.Int("candidates", len(candidates)),
			)
			perFeed[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range perFeed {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var genuine []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			genuine = append(genuine, code)
		}
	}
	return genuine, nil
}

// streamFeed calls fn for every line of a gzip-compressed feed.
func streamFeed(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}

// writeCoupons upserts the codes in batches. Codes are stored uppercase;
// checkout lookup is case-insensitive.
func writeCoupons(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	written := 0
	for start := 0; start < len(codes); start += writeBatch {
		end := min(start+writeBatch, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			code = strings.ToUpper(code)
			rule, ok := codeRules[code]
			if !ok {
				rule = defaultRule
			}

			var minOrder *decimal.Decimal
			if rule.minOrderValue > 0 {
				v := decimal.NewFromInt(rule.minOrderValue)
				minOrder = &v
			}

			batch.Queue(upsertCouponSQL,
				code, decimal.NewFromInt(rule.percent), minOrder, rule.singleUse, rule.description,
			)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert batch at offset %d", start)
		}

		written = end
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(codes)))
	}

	return nil
}
