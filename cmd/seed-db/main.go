// Command seed-db loads the product catalog, demo coupons, and shipping
// settings into PostgreSQL. It is idempotent: every write is an upsert.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rivamart/storefront/internal/repository"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, category, image_thumbnail, image_mobile, image_tablet, image_desktop)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category,
			image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop`

	upsertVariantSQL = `INSERT INTO product_variants (product_id, color, size, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, color, size) DO UPDATE SET stock = EXCLUDED.stock`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_percent, active, min_order_value, single_use, expires_at, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			discount_percent = EXCLUDED.discount_percent, active = EXCLUDED.active,
			min_order_value = EXCLUDED.min_order_value, single_use = EXCLUDED.single_use,
			expires_at = EXCLUDED.expires_at, description = EXCLUDED.description`

	upsertSettingSQL = `INSERT INTO site_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
	Variants []struct {
		Color string `json:"color"`
		Size  string `json:"size"`
		Stock int    `json:"stock"`
	} `json:"variants"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
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

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
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

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedShippingSettings(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping settings")
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
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category,
			p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			if _, err := pool.Exec(ctx, upsertVariantSQL, p.ID, v.Color, v.Size, v.Stock); err != nil {
				return errors.Wrapf(err, "upsert variant %s %s/%s", p.ID, v.Color, v.Size)
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}
	return nil
}

type couponSeed struct {
	code            string
	discountPercent decimal.Decimal
	minOrderValue   *decimal.Decimal
	singleUse       bool
	expiresAt       *time.Time
	description     string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	min500 := decimal.NewFromInt(500)
	nextYear := time.Now().AddDate(1, 0, 0)

	coupons := []couponSeed{
		{
			code:            "WELCOME10",
			discountPercent: decimal.NewFromInt(10),
			singleUse:       true,
			description:     "10% off your first order",
		},
		{
			code:            "SAVE20",
			discountPercent: decimal.NewFromInt(20),
			minOrderValue:   &min500,
			expiresAt:       &nextYear,
			description:     "20% off orders over 500",
		},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.discountPercent, true, c.minOrderValue, c.singleUse, c.expiresAt, c.description,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}
	return nil
}

func seedShippingSettings(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding shipping settings")

	value, err := json.Marshal(map[string]decimal.Decimal{
		"freeShippingThreshold": decimal.NewFromInt(1500),
		"shippingFee":           decimal.NewFromInt(200),
	})
	if err != nil {
		return errors.Wrap(err, "encode shipping settings")
	}

	if _, err := pool.Exec(ctx, upsertSettingSQL, "shipping", value); err != nil {
		return errors.Wrap(err, "upsert shipping settings")
	}
	return nil
}
