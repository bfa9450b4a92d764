package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/uow"
	"github.com/xenking/storefront/internal/domain/user"
)

// CheckoutRequest holds the input for placing an order from a cart.
type CheckoutRequest struct {
	UserID     string
	AddressID  string
	CouponCode string
}

// Deps are the collaborators of Service.
type Deps struct {
	Carts      cart.Repository
	Products   product.Repository
	Users      user.Repository
	Coupons    coupon.Redeemer
	Orders     Repository
	Events     EventRecorder
	UnitOfWork uow.UnitOfWork
	Meter      metric.Meter
}

// Options tune checkout behavior.
type Options struct {
	// ClampNegativeTotal floors the order total at zero when a fixed coupon
	// exceeds the subtotal.
	ClampNegativeTotal bool
}

// Service places orders and manages their lifecycle.
type Service struct {
	carts    cart.Repository
	products product.Repository
	users    user.Repository
	coupons  coupon.Redeemer
	orders   Repository
	events   EventRecorder
	uow      uow.UnitOfWork
	opts     Options

	checkouts metric.Int64Counter
	revenue   metric.Float64Counter

	now   func() time.Time
	newID func() string
}

// NewService creates an order Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	meter := deps.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("order")
	}
	checkouts, err := meter.Int64Counter("storefront.checkout.count",
		metric.WithDescription("Checkout attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	revenue, err := meter.Float64Counter("storefront.checkout.revenue",
		metric.WithDescription("Sum of placed order totals"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}

	events := deps.Events
	if events == nil {
		events = discardEvents{}
	}
	return &Service{
		carts:     deps.Carts,
		products:  deps.Products,
		users:     deps.Users,
		coupons:   deps.Coupons,
		orders:    deps.Orders,
		events:    events,
		uow:       deps.UnitOfWork,
		opts:      opts,
		checkouts: checkouts,
		revenue:   revenue,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Checkout converts the user's cart into an order. Cart lock, coupon
// redemption, stock decrement, order insert and event record happen in one
// atomic unit: any failure leaves no trace.
//
// The cart itself is not cleared here; callers compose Checkout with
// cart.Service.CheckoutWith.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	var placed *Order
	err := s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		o, err := s.checkout(ctx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		s.checkouts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", apperr.ClassOf(err).String()),
		))
		return nil, err
	}

	// Checkout may run inside a caller's unit that can still roll back.
	uow.AfterCommit(ctx, func(ctx context.Context) {
		s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
		s.revenue.Add(ctx, placed.TotalPrice.InexactFloat64())
		zctx.From(ctx).Info("Order placed",
			zap.String("order_id", placed.ID),
			zap.String("user_id", placed.UserID),
			zap.String("total", placed.TotalPrice.StringFixed(2)),
			zap.Bool("coupon", placed.CouponID != ""),
		)
	})
	return placed, nil
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	c, err := s.carts.GetForUpdate(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Persist(err, "load cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	// Batch-fetch all products in a single query.
	products, err := s.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, apperr.Persist(err, "load cart products")
	}
	catalog := cart.Index(products)
	for _, item := range c.Items {
		p, ok := catalog[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.IsAvailable {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
	}
	priced := cart.Price(c, catalog)

	u, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, apperr.Persist(err, "load user")
	}
	addr, ok := u.Address(req.AddressID)
	if !ok {
		return nil, user.ErrAddressNotFound
	}

	subtotal := priced.Total
	discount := decimal.Zero
	var couponID string
	if req.CouponCode != "" {
		r, err := s.coupons.Redeem(ctx, req.CouponCode, subtotal)
		if err != nil {
			return nil, apperr.Persist(err, "redeem coupon")
		}
		if r != nil {
			discount = r.Discount
			couponID = r.CouponID
		}
	}

	total := subtotal.Sub(discount)
	if s.opts.ClampNegativeTotal && total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	items := make([]OrderItem, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		if err := s.products.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return nil, &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity}
			}
			return nil, apperr.Persist(err, "decrement stock")
		}
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
		})
	}

	now := s.now().UTC()
	o := &Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Items:           items,
		Subtotal:        subtotal,
		Discount:        discount,
		TotalPrice:      total,
		CouponID:        couponID,
		PaymentMethod:   PaymentCash,
		PaymentStatus:   PaymentPending,
		OrderStatus:     StatusPending,
		ShippingAddress: shippingFrom(addr),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, apperr.Persist(err, "create order")
	}
	if err := s.events.Record(ctx, s.event(EventCreated, o, now)); err != nil {
		return nil, apperr.Persist(err, "record order event")
	}
	return o, nil
}

func shippingFrom(a user.Address) ShippingAddress {
	sa := ShippingAddress{Street: a.Street, PostalCode: a.PostalCode}
	if a.HouseNumber != nil {
		n := *a.HouseNumber
		sa.HouseNumber = &n
	}
	return sa
}

func (s *Service) event(t EventType, o *Order, at time.Time) Event {
	return Event{
		ID:         s.newID(),
		Type:       t,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.OrderStatus,
		TotalPrice: o.TotalPrice,
		CouponID:   o.CouponID,
		OccurredAt: at,
	}
}
