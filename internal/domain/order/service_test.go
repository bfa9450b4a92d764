package order

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/uow"
	"github.com/xenking/storefront/internal/domain/user"
)

// store is an in-memory backend whose state is restored when an atomic
// unit fails.
type store struct {
	carts     map[string]cart.Cart
	products  map[string]product.Product
	users     map[string]user.User
	coupons   map[string]coupon.Coupon // by code
	orders    map[string]Order
	events    []Event
	createErr error
}

func newStore() *store {
	return &store{
		carts:    make(map[string]cart.Cart),
		products: make(map[string]product.Product),
		users:    make(map[string]user.User),
		coupons:  make(map[string]coupon.Coupon),
		orders:   make(map[string]Order),
	}
}

func (s *store) snapshot() *store {
	cp := newStore()
	for k, v := range s.carts {
		v.Items = append([]cart.Item(nil), v.Items...)
		cp.carts[k] = v
	}
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.coupons {
		cp.coupons[k] = v
	}
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	cp.events = append([]Event(nil), s.events...)
	cp.createErr = s.createErr
	return cp
}

func (s *store) unit() uow.UnitOfWork {
	return uow.Func(func(ctx context.Context, fn func(ctx context.Context) error) error {
		saved := s.snapshot()
		if err := fn(ctx); err != nil {
			*s = *saved
			return err
		}
		return nil
	})
}

type cartRepo struct{ st *store }

func (r cartRepo) Get(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := r.st.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	c.Items = append([]cart.Item(nil), c.Items...)
	return &c, nil
}

func (r cartRepo) GetForUpdate(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.Get(ctx, userID)
}

func (r cartRepo) Save(_ context.Context, c *cart.Cart) error {
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	r.st.carts[c.UserID] = cp
	return nil
}

type productRepo struct {
	product.Repository
	st *store
}

func (r productRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r productRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r productRepo) AdjustStock(_ context.Context, id string, delta int) error {
	p, ok := r.st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Quantity+delta < 0 {
		return product.ErrInsufficientStock
	}
	p.Quantity += delta
	r.st.products[id] = p
	return nil
}

type userRepo struct {
	user.Repository
	st *store
}

func (r userRepo) FindByID(_ context.Context, id string) (*user.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

type couponRepo struct {
	coupon.Repository
	st *store
}

func (r couponRepo) FindByCodeForUpdate(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := r.st.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (r couponRepo) Redeem(_ context.Context, id string) error {
	for code, c := range r.st.coupons {
		if c.ID != id {
			continue
		}
		if c.Exhausted() {
			return coupon.ErrUsageLimitReached
		}
		c.UsedCount++
		r.st.coupons[code] = c
		return nil
	}
	return coupon.ErrNotFound
}

type orderRepo struct{ st *store }

func (r orderRepo) Create(_ context.Context, o *Order) error {
	if r.st.createErr != nil {
		return r.st.createErr
	}
	r.st.orders[o.ID] = *o
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return r.GetByID(ctx, id)
}

func (r orderRepo) List(_ context.Context, f Filter) ([]Order, int, error) {
	var out []Order
	for _, o := range r.st.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.OrderStatus != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return out[start:end], total, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id string, status Status, at time.Time) error {
	o, ok := r.st.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.OrderStatus = status
	o.UpdatedAt = at
	r.st.orders[id] = o
	return nil
}

type eventLog struct{ st *store }

func (e eventLog) Record(_ context.Context, ev Event) error {
	e.st.events = append(e.st.events, ev)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

// fixture seeds user u1 with address a1 and a cart of 2 x p1 at 50.00.
func fixture(t *testing.T, opts Options) (*Service, *store) {
	t.Helper()
	st := newStore()
	st.products["p1"] = product.Product{ID: "p1", Name: "Kettle", Price: decimal.RequireFromString("50.00"), Quantity: 10, IsAvailable: true}
	st.products["p2"] = product.Product{ID: "p2", Name: "Mug", Price: decimal.RequireFromString("7.50"), Quantity: 1, IsAvailable: true}
	st.users["u1"] = user.User{
		ID:   "u1",
		Role: auth.RoleConsumer,
		Addresses: []user.Address{
			{ID: "a1", Street: "Main Street", HouseNumber: intPtr(12), PostalCode: 10115, IsDefault: true},
		},
	}
	st.users["u2"] = user.User{
		ID:        "u2",
		Role:      auth.RoleConsumer,
		Addresses: []user.Address{{ID: "a2", Street: "Other Road", PostalCode: 20095}},
	}
	st.carts["u1"] = cart.Cart{UserID: "u1", Items: []cart.Item{{ID: "i1", ProductID: "p1", Quantity: 2}}}
	st.coupons["SAVE20"] = coupon.Coupon{
		ID: "c1", Code: "SAVE20", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(20),
		ExpiresAt: fixedNow.AddDate(10, 0, 0), IsActive: true, UsageLimit: intPtr(5), UsedCount: 3,
	}

	svc, err := NewService(Deps{
		Carts:      cartRepo{st},
		Products:   productRepo{st: st},
		Users:      userRepo{st: st},
		Coupons:    coupon.NewRepoRedeemer(couponRepo{st: st}, coupon.PolicyLenient),
		Orders:     orderRepo{st},
		Events:     eventLog{st},
		UnitOfWork: st.unit(),
	}, opts)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return "id-" + string(rune('a'+ids-1))
	}
	return svc, st
}

func TestCheckout_AppliesCoupon(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"})
	require.NoError(t, err)

	assert.Equal(t, "100", o.Subtotal.String())
	assert.Equal(t, "20", o.Discount.String())
	assert.Equal(t, "80", o.TotalPrice.String())
	assert.Equal(t, "c1", o.CouponID)
	assert.Equal(t, StatusPending, o.OrderStatus)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, PaymentCash, o.PaymentMethod)
	assert.Equal(t, "Main Street", o.ShippingAddress.Street)
	require.NotNil(t, o.ShippingAddress.HouseNumber)
	assert.Equal(t, 12, *o.ShippingAddress.HouseNumber)
	assert.Equal(t, fixedNow, o.CreatedAt)

	require.Len(t, o.Items, 1)
	assert.Equal(t, OrderItem{ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("50.00")}, o.Items[0])

	assert.Equal(t, 4, st.coupons["SAVE20"].UsedCount)
	assert.Equal(t, 8, st.products["p1"].Quantity)
	require.Contains(t, st.orders, o.ID)
	require.Len(t, st.events, 1)
	assert.Equal(t, EventCreated, st.events[0].Type)
	assert.Equal(t, o.ID, st.events[0].OrderID)
}

func TestCheckout_ExhaustedCouponLeavesNoTrace(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	c := st.coupons["SAVE20"]
	c.UsedCount = 5
	st.coupons["SAVE20"] = c

	_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"})
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	assert.Equal(t, 5, st.coupons["SAVE20"].UsedCount)
	assert.Equal(t, 10, st.products["p1"].Quantity)
	assert.Empty(t, st.orders)
	assert.Empty(t, st.events)
}

func TestCheckout_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(st *store)
		req    CheckoutRequest
		check  func(t *testing.T, err error)
		class  apperr.Class
		coupon int
	}{
		{
			name:  "empty cart",
			setup: func(st *store) { st.carts["u1"] = cart.Cart{UserID: "u1"} },
			req:   CheckoutRequest{UserID: "u1", AddressID: "a1"},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyCart) },
			class: apperr.InvalidState,
		},
		{
			name:  "no cart",
			setup: func(st *store) { delete(st.carts, "u1") },
			req:   CheckoutRequest{UserID: "u1", AddressID: "a1"},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, cart.ErrNotFound) },
			class: apperr.NotFound,
		},
		{
			name:  "foreign address",
			req:   CheckoutRequest{UserID: "u1", AddressID: "a2", CouponCode: "SAVE20"},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, user.ErrAddressNotFound) },
			class: apperr.NotFound,
		},
		{
			name:  "deleted product",
			setup: func(st *store) { delete(st.products, "p1") },
			req:   CheckoutRequest{UserID: "u1", AddressID: "a1"},
			check: func(t *testing.T, err error) {
				var e *ProductNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "p1", e.ProductID)
			},
			class: apperr.NotFound,
		},
		{
			name: "unavailable product",
			setup: func(st *store) {
				p := st.products["p1"]
				p.IsAvailable = false
				st.products["p1"] = p
			},
			req: CheckoutRequest{UserID: "u1", AddressID: "a1"},
			check: func(t *testing.T, err error) {
				var e *ProductUnavailableError
				assert.ErrorAs(t, err, &e)
			},
			class: apperr.InvalidState,
		},
		{
			name: "insufficient stock rolls back coupon",
			setup: func(st *store) {
				st.carts["u1"] = cart.Cart{UserID: "u1", Items: []cart.Item{
					{ID: "i1", ProductID: "p1", Quantity: 2},
					{ID: "i2", ProductID: "p2", Quantity: 3},
				}}
			},
			req: CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"},
			check: func(t *testing.T, err error) {
				var e *InsufficientStockError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "p2", e.ProductID)
				assert.Equal(t, 3, e.Requested)
			},
			class: apperr.InvalidState,
		},
		{
			name:  "order insert fails",
			setup: func(st *store) { st.createErr = errors.New("connection reset") },
			req:   CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"},
			check: func(t *testing.T, err error) {
				assert.Equal(t, "internal server error", apperr.Message(err))
			},
			class: apperr.Persistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := fixture(t, Options{ClampNegativeTotal: true})
			if tt.setup != nil {
				tt.setup(st)
			}

			o, err := svc.Checkout(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, o)
			tt.check(t, err)
			assert.Equal(t, tt.class, apperr.ClassOf(err))

			assert.Equal(t, 3, st.coupons["SAVE20"].UsedCount)
			assert.Empty(t, st.orders)
			assert.Empty(t, st.events)
			if p, ok := st.products["p1"]; ok {
				assert.Equal(t, 10, p.Quantity)
			}
		})
	}
}

func TestCheckout_FixedCouponAboveSubtotal(t *testing.T) {
	tests := []struct {
		name  string
		clamp bool
		want  string
	}{
		{name: "clamped", clamp: true, want: "0"},
		{name: "unclamped", clamp: false, want: "-50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := fixture(t, Options{ClampNegativeTotal: tt.clamp})
			st.coupons["BIG150"] = coupon.Coupon{
				ID: "c2", Code: "BIG150", DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(150),
				ExpiresAt: fixedNow.AddDate(1, 0, 0), IsActive: true,
			}

			o, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "BIG150"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.TotalPrice.String())
			assert.Equal(t, "150", o.Discount.String())
			assert.Equal(t, 1, st.coupons["BIG150"].UsedCount)
		})
	}
}

func TestCheckout_UnknownCouponIsIgnored(t *testing.T) {
	svc, _ := fixture(t, Options{ClampNegativeTotal: true})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "NOPE99"})
	require.NoError(t, err)
	assert.Equal(t, "100", o.TotalPrice.String())
	assert.Empty(t, o.CouponID)
	assert.True(t, o.Discount.IsZero())
}

func TestCheckout_PriceSnapshot(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", AddressID: "a1"})
	require.NoError(t, err)

	p := st.products["p1"]
	p.Price = decimal.NewFromInt(999)
	st.products["p1"] = p

	got, err := svc.GetForUser(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", got.Items[0].Price.String())
	assert.Equal(t, "100", got.TotalPrice.String())
}

func TestCheckout_WithCartClearing(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	carts := cart.NewService(cartRepo{st}, productRepo{st: st}, st.unit())
	ctx := context.Background()
	req := CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"}

	place := func(ctx context.Context) error {
		_, err := svc.Checkout(ctx, req)
		return err
	}

	require.NoError(t, carts.CheckoutWith(ctx, "u1", place))
	assert.Empty(t, st.carts["u1"].Items)
	assert.Len(t, st.orders, 1)

	err := carts.CheckoutWith(ctx, "u1", place)
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Len(t, st.orders, 1)
	assert.Equal(t, 4, st.coupons["SAVE20"].UsedCount)
}

func TestCheckout_FailedPlacementKeepsCart(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	carts := cart.NewService(cartRepo{st}, productRepo{st: st}, st.unit())

	err := carts.CheckoutWith(context.Background(), "u1", func(ctx context.Context) error {
		_, err := svc.Checkout(ctx, CheckoutRequest{UserID: "u1", AddressID: "missing"})
		return err
	})
	require.ErrorIs(t, err, user.ErrAddressNotFound)
	assert.Len(t, st.carts["u1"].Items, 1)
}

func TestCheckout_ReportsOnlyCommittedOrders(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	core, logs := observer.New(zap.InfoLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))
	req := CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"}

	err := st.unit().RunAtomically(ctx, func(ctx context.Context) error {
		_, err := svc.Checkout(ctx, req)
		require.NoError(t, err)
		assert.Zero(t, logs.FilterMessage("Order placed").Len())
		return errors.New("clear cart: connection reset")
	})
	require.Error(t, err)
	assert.Empty(t, st.orders)
	assert.Zero(t, logs.FilterMessage("Order placed").Len())

	carts := cart.NewService(cartRepo{st}, productRepo{st: st}, st.unit())
	require.NoError(t, carts.CheckoutWith(ctx, "u1", func(ctx context.Context) error {
		_, err := svc.Checkout(ctx, req)
		return err
	}))
	placed := logs.FilterMessage("Order placed").All()
	require.Len(t, placed, 1)
	assert.Equal(t, "u1", placed[0].ContextMap()["user_id"])
	assert.Equal(t, "80.00", placed[0].ContextMap()["total"])
}

func placeOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	o, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", AddressID: "a1"})
	require.NoError(t, err)
	return o
}

func TestCancel(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	o := placeOrder(t, svc)
	require.Equal(t, 8, st.products["p1"].Quantity)

	_, err := svc.Cancel(context.Background(), "u2", o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	cancelled, err := svc.Cancel(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.OrderStatus)
	assert.Equal(t, 10, st.products["p1"].Quantity)
	assert.Equal(t, EventCancelled, st.events[len(st.events)-1].Type)

	_, err = svc.Cancel(context.Background(), "u1", o.ID)
	require.ErrorIs(t, err, ErrAlreadyClosed)
	assert.Equal(t, 10, st.products["p1"].Quantity)

	_, err = svc.Return(context.Background(), "u1", o.ID)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 10, st.products["p1"].Quantity)
}

func TestCancel_SkipsDeletedProducts(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	o := placeOrder(t, svc)
	delete(st.products, "p1")

	cancelled, err := svc.Cancel(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.OrderStatus)
}

func TestReturn(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	o := placeOrder(t, svc)

	returned, err := svc.Return(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, returned.OrderStatus)
	assert.Equal(t, 10, st.products["p1"].Quantity)

	_, err = svc.Return(context.Background(), "u1", o.ID)
	require.ErrorIs(t, err, ErrAlreadyReturned)

	_, err = svc.Cancel(context.Background(), "u1", o.ID)
	require.ErrorIs(t, err, ErrAlreadyClosed)
	assert.Equal(t, 10, st.products["p1"].Quantity)
}

func TestUpdateStatus(t *testing.T) {
	svc, st := fixture(t, Options{ClampNegativeTotal: true})
	o := placeOrder(t, svc)

	_, err := svc.UpdateStatus(context.Background(), o.ID, StatusReturned)
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.UpdateStatus(context.Background(), o.ID, Status("lost"))
	require.ErrorIs(t, err, ErrInvalidStatus)

	shipped, err := svc.UpdateStatus(context.Background(), o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, shipped.OrderStatus)
	assert.Equal(t, StatusShipped, st.orders[o.ID].OrderStatus)

	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 8, st.products["p1"].Quantity, "admin status change does not restock")

	_, err = svc.UpdateStatus(context.Background(), "missing", StatusShipped)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	svc, _ := fixture(t, Options{ClampNegativeTotal: true})

	orders, total, err := svc.ListForUser(context.Background(), "u2", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	assert.Zero(t, total)

	o := placeOrder(t, svc)
	orders, total, err = svc.ListForUser(context.Background(), "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)

	_, _, err = svc.List(context.Background(), Filter{Status: "bogus"})
	require.ErrorIs(t, err, ErrInvalidStatus)

	orders, total, err = svc.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, orders, 1)
}

func TestGetForUser_HidesForeignOrders(t *testing.T) {
	svc, _ := fixture(t, Options{ClampNegativeTotal: true})
	o := placeOrder(t, svc)

	_, err := svc.GetForUser(context.Background(), "u2", o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}
