package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/dashboard"
)

const revenueSQL = `SELECT COALESCE(SUM(total_price), 0) FROM orders
	WHERE order_status NOT IN ('cancelled', 'returned')`

var _ dashboard.Source = (*DashboardRepository)(nil)

// DashboardRepository computes store statistics.
type DashboardRepository struct {
	conn
}

// NewDashboardRepository returns a DashboardRepository that uses the given pool.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{conn{pool: pool}}
}

func (r *DashboardRepository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM users`)
}

func (r *DashboardRepository) CountProducts(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM products`)
}

func (r *DashboardRepository) CountOrders(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM orders`)
}

func (r *DashboardRepository) CountCoupons(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM coupons`)
}

// Revenue sums the totals of orders that were not cancelled or returned.
func (r *DashboardRepository) Revenue(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := r.q(ctx).QueryRow(ctx, revenueSQL).Scan(&sum); err != nil {
		return decimal.Zero, errors.Wrap(err, "sum revenue")
	}
	return sum, nil
}

func (r *DashboardRepository) count(ctx context.Context, sql string) (int, error) {
	var n int
	if err := r.q(ctx).QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}
