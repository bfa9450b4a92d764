// Command seed-db loads demo catalog data, coupons and an administrator
// account into the storefront database. It is safe to run repeatedly.
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
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	IsAvailable *bool           `json:"isAvailable"`
}

type options struct {
	databaseURL   string
	productsFile  string
	adminEmail    string
	adminPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@storefront.local", "email of the seeded administrator")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "administrator password (or STOREFRONT_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.adminPassword == "" {
		opts.adminPassword = os.Getenv("STOREFRONT_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if opts.adminPassword == "" {
		slog.Warn("no admin password given, skipping administrator")
		return nil
	}
	if err := seedAdmin(ctx, pool, opts.adminEmail, opts.adminPassword); err != nil {
		return errors.Wrap(err, "seed admin")
	}
	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, path string) error {
	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	now := time.Now().UTC()
	for _, it := range items {
		p := product.Product{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price.Round(2),
			Category:    it.Category,
			Quantity:    it.Quantity,
			IsAvailable: it.IsAvailable == nil || *it.IsAvailable,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %s", it.ID)
		}

		existing, err := repo.GetByID(ctx, p.ID)
		switch {
		case errors.Is(err, product.ErrNotFound):
			err = repo.Create(ctx, &p)
		case err == nil:
			p.CreatedAt = existing.CreatedAt
			err = repo.Update(ctx, &p)
		}
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding coupons")

	now := time.Now().UTC()
	nextYear := now.AddDate(1, 0, 0)
	coupons := []coupon.Coupon{
		{Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), ExpiresAt: nextYear, IsActive: true},
		{Code: "SAVE20", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(20), ExpiresAt: nextYear, IsActive: true, UsageLimit: ptr(100)},
		{Code: "FLAT15", DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(15), ExpiresAt: nextYear, IsActive: true},
		{Code: "EXPIRED50", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(50), ExpiresAt: now.AddDate(0, 0, -1), IsActive: true},
	}
	for i := range coupons {
		c := &coupons[i]
		c.ID = uuid.NewString()
		c.CreatedAt, c.UpdatedAt = now, now
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
	}

	if err := repo.UpsertBatch(ctx, coupons); err != nil {
		return err
	}
	slog.Info("upserted coupons", slog.Int("count", len(coupons)))
	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	users := postgres.NewUserRepository(pool)

	existing, err := users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := users.UpdateRole(ctx, existing.ID, auth.RoleAdmin); err != nil {
			return err
		}
		slog.Info("promoted existing user to admin", slog.String("email", email))
		return nil
	case !errors.Is(err, user.ErrNotFound):
		return err
	}

	hash, err := auth.BcryptHasher{}.Hash(password)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	now := time.Now().UTC()
	admin := &user.User{
		ID:           uuid.NewString(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return errors.Wrap(err, "create admin")
	}

	slog.Info("created administrator", slog.String("email", email))
	return nil
}

func ptr[T any](v T) *T { return &v }
