// Package dashboard aggregates store-wide statistics for administrators.
package dashboard

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Statistics is the administrator overview.
type Statistics struct {
	TotalUsers    int
	TotalProducts int
	TotalOrders   int
	TotalCoupons  int
	// Revenue sums the totals of orders that were neither cancelled nor
	// returned.
	Revenue decimal.Decimal
}

// Source provides the individual counters.
type Source interface {
	CountUsers(ctx context.Context) (int, error)
	CountProducts(ctx context.Context) (int, error)
	CountOrders(ctx context.Context) (int, error)
	CountCoupons(ctx context.Context) (int, error)
	Revenue(ctx context.Context) (decimal.Decimal, error)
}

// Service computes Statistics.
type Service struct {
	src Source
}

// NewService returns a dashboard Service.
func NewService(src Source) *Service {
	return &Service{src: src}
}

// Statistics queries every counter concurrently. The first failure cancels
// the rest.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	var st Statistics
	g, ctx := errgroup.WithContext(ctx)

	count := func(name string, dst *int, fn func(context.Context) (int, error)) {
		g.Go(func() error {
			n, err := fn(ctx)
			if err != nil {
				return errors.Wrapf(err, "count %s", name)
			}
			*dst = n
			return nil
		})
	}
	count("users", &st.TotalUsers, s.src.CountUsers)
	count("products", &st.TotalProducts, s.src.CountProducts)
	count("orders", &st.TotalOrders, s.src.CountOrders)
	count("coupons", &st.TotalCoupons, s.src.CountCoupons)
	g.Go(func() error {
		r, err := s.src.Revenue(ctx)
		if err != nil {
			return errors.Wrap(err, "revenue")
		}
		st.Revenue = r.Round(2)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}
