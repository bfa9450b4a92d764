package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, discount_value, expires_at, is_active, usage_limit, used_count, created_at, updated_at`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByCodeForUpdateSQL = getCouponByCodeSQL + ` FOR UPDATE`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateCouponSQL = `UPDATE coupons SET code = $2, discount_type = $3, discount_value = $4, expires_at = $5,
		is_active = $6, usage_limit = $7, updated_at = $8 WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	redeemCouponSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

	// Upserts keep the id and usage counter of an existing code.
	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)
		ON CONFLICT (code) DO UPDATE SET discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value, expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active, usage_limit = EXCLUDED.usage_limit,
			updated_at = EXCLUDED.updated_at`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	conn
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{conn{pool: pool}}
}

// FindByID returns the coupon with the given id.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByIDSQL, id)
}

// FindByCode looks up a coupon by its exact code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

// FindByCodeForUpdate is FindByCode holding a row lock until the surrounding
// transaction ends. Outside a transaction the lock is released immediately.
func (r *CouponRepository) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeForUpdateSQL, code)
}

func (r *CouponRepository) findOne(ctx context.Context, sql, arg string) (*coupon.Coupon, error) {
	rows, err := r.q(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", arg)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", arg)
	}
	return &c, nil
}

// List returns a filtered page of coupons and the total match count.
func (r *CouponRepository) List(ctx context.Context, f coupon.ListFilter) ([]coupon.Coupon, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Code != "" {
		where = append(where, "code ILIKE '%' || "+arg(escapeLike(f.Code))+" || '%'")
	}
	if f.IsActive != nil {
		where = append(where, "is_active = "+arg(*f.IsActive))
	}
	if f.DiscountType != "" {
		where = append(where, "discount_type = "+arg(string(f.DiscountType)))
	}
	if f.Valid != nil {
		op := "<="
		if *f.Valid {
			op = ">"
		}
		where = append(where, "expires_at "+op+" "+arg(f.Now))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q(ctx).QueryRow(ctx, "SELECT count(*) FROM coupons"+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count coupons")
	}

	order := "created_at DESC, id"
	if f.SortBy == coupon.SortDiscountValue {
		order = "discount_value DESC, id"
	}
	sql := "SELECT " + couponColumns + " FROM coupons" + clause +
		" ORDER BY " + order +
		" LIMIT " + arg(f.Limit) + " OFFSET " + arg(max(f.Page-1, 0)*f.Limit)

	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list coupons")
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list coupons")
	}
	return coupons, total, nil
}

// Create inserts a coupon. A duplicate code yields coupon.ErrCodeTaken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.q(ctx).Exec(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.ExpiresAt,
		c.IsActive, c.UsageLimit, c.UsedCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCodeTaken
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update saves the definition fields of c. UsedCount is owned by Redeem.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.q(ctx).Exec(ctx, updateCouponSQL,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.ExpiresAt,
		c.IsActive, c.UsageLimit, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrCodeTaken
		}
		return errors.Wrapf(err, "update coupon %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon. Orders that used it keep a NULL reference.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q(ctx).Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem increments used_count with a guarded UPDATE, so the limit holds
// even without the row lock taken by FindByCodeForUpdate.
func (r *CouponRepository) Redeem(ctx context.Context, id string) error {
	tag, err := r.q(ctx).Exec(ctx, redeemCouponSQL, id)
	if err != nil {
		return errors.Wrapf(err, "redeem coupon %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.q(ctx).QueryRow(ctx, couponExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check coupon %q", id)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageLimitReached
}

// UpsertBatch inserts or refreshes coupons by code in one round trip. It
// is used by bulk loaders, not by the API.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, c := range coupons {
		b.Queue(upsertCouponSQL,
			c.ID, strings.ToUpper(c.Code), string(c.DiscountType), c.DiscountValue,
			c.ExpiresAt, c.IsActive, c.UsageLimit, c.UpdatedAt,
		)
	}

	br := r.q(ctx).SendBatch(ctx, b)
	for i := range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "upsert coupon %q", coupons[i].Code)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c     coupon.Coupon
		dtype string
	)
	err := row.Scan(
		&c.ID, &c.Code, &dtype, &c.DiscountValue, &c.ExpiresAt,
		&c.IsActive, &c.UsageLimit, &c.UsedCount, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(dtype)
	return c, err
}
