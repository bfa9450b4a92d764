package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

const (
	consumerToken = "consumer-token"
	adminToken    = "admin-token"
)

type fakeTokens struct{}

func (fakeTokens) VerifyAccess(token string) (auth.Principal, error) {
	switch token {
	case consumerToken:
		return auth.Principal{UserID: "u1", Role: auth.RoleConsumer}, nil
	case adminToken:
		return auth.Principal{UserID: "admin", Role: auth.RoleAdmin}, nil
	}
	return auth.Principal{}, auth.ErrInvalidToken
}

// Fakes embed the interface so tests only implement what they exercise.
type fakeAccounts struct {
	Accounts
	registered user.RegisterParams
	role       auth.Role
}

func (f *fakeAccounts) Register(_ context.Context, p user.RegisterParams) (*user.User, auth.Tokens, error) {
	f.registered = p
	if p.Email == "taken@example.com" {
		return nil, auth.Tokens{}, user.ErrEmailTaken
	}
	u := &user.User{ID: "u1", Name: p.Name, Email: p.Email, Role: auth.RoleConsumer}
	return u, auth.Tokens{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeAccounts) SetRole(_ context.Context, _ string, role auth.Role) error {
	if !role.Valid() {
		return apperr.New(apperr.Invalid, "unknown role")
	}
	f.role = role
	return nil
}

type fakeCatalog struct {
	Catalog
	params product.ListParams
}

func (f *fakeCatalog) List(_ context.Context, params product.ListParams) ([]product.Product, int, error) {
	f.params = params
	return []product.Product{{ID: "p1", Name: "Mouse", Price: decimal.RequireFromString("19.9")}}, 7, nil
}

func (f *fakeCatalog) Get(_ context.Context, id string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

type fakeCarts struct {
	Carts
	cleared bool
}

func (f *fakeCarts) CheckoutWith(ctx context.Context, _ string, place func(ctx context.Context) error) error {
	if err := place(ctx); err != nil {
		return err
	}
	f.cleared = true
	return nil
}

type fakeOrders struct {
	Orders
	req order.CheckoutRequest
	err error
}

func (f *fakeOrders) Checkout(_ context.Context, req order.CheckoutRequest) (*order.Order, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &order.Order{
		ID:            "o1",
		UserID:        req.UserID,
		Items:         []order.OrderItem{{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(50)}},
		Subtotal:      decimal.NewFromInt(100),
		Discount:      decimal.NewFromInt(20),
		TotalPrice:    decimal.NewFromInt(80),
		PaymentMethod: order.PaymentCash,
		PaymentStatus: order.PaymentPending,
		OrderStatus:   order.StatusPending,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

type fakeCoupons struct {
	Coupons
	created coupon.Coupon
	patch   coupon.Patch
}

func (f *fakeCoupons) Create(_ context.Context, c coupon.Coupon) (*coupon.Coupon, error) {
	f.created = c
	c.ID = "c1"
	return &c, nil
}

func (f *fakeCoupons) Update(_ context.Context, _ string, patch coupon.Patch) (*coupon.Coupon, error) {
	f.patch = patch
	return &coupon.Coupon{ID: "c1", Code: "SAVE20"}, nil
}

type env struct {
	accounts *fakeAccounts
	catalog  *fakeCatalog
	carts    *fakeCarts
	orders   *fakeOrders
	coupons  *fakeCoupons
	mux      *http.ServeMux
}

func newEnv() *env {
	e := &env{
		accounts: &fakeAccounts{},
		catalog:  &fakeCatalog{},
		carts:    &fakeCarts{},
		orders:   &fakeOrders{},
		coupons:  &fakeCoupons{},
		mux:      http.NewServeMux(),
	}
	New(Deps{
		Accounts: e.accounts,
		Catalog:  e.catalog,
		Carts:    e.carts,
		Orders:   e.orders,
		Coupons:  e.coupons,
		Tokens:   fakeTokens{},
	}).Register(e.mux)
	return e
}

func (e *env) do(method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

// fields returns the raw JSON of every top-level field of the body.
func fields(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		out[key] = raw.String()
		return err
	})
	require.NoError(t, err, w.Body.String())
	return out
}

func TestAuthentication(t *testing.T) {
	e := newEnv()

	for _, tt := range []struct {
		name    string
		method  string
		target  string
		token   string
		status  int
		message string
	}{
		{"NoToken", http.MethodGet, "/api/cart", "", http.StatusUnauthorized, `"authentication required"`},
		{"BadToken", http.MethodGet, "/api/orders", "nope", http.StatusUnauthorized, `"invalid or expired token"`},
		{"ConsumerOnAdmin", http.MethodGet, "/api/admin/dashboard", consumerToken, http.StatusForbidden, `"insufficient permissions"`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(tt.method, tt.target, tt.token, "")
			require.Equal(t, tt.status, w.Code)

			body := fields(t, w)
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestCheckout(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		e := newEnv()
		w := e.do(http.MethodPost, "/api/cart/checkout", consumerToken, `{"addressId":"a1","coupon":"SAVE20"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		assert.Equal(t, order.CheckoutRequest{UserID: "u1", AddressID: "a1", CouponCode: "SAVE20"}, e.orders.req)
		assert.True(t, e.carts.cleared)

		body := fields(t, w)
		assert.Equal(t, `"o1"`, body["id"])
		assert.Equal(t, "100.00", body["subtotal"])
		assert.Equal(t, "20.00", body["discount"])
		assert.Equal(t, "80.00", body["totalPrice"])
		assert.Equal(t, `"pending"`, body["orderStatus"])
		assert.Equal(t, `"cash"`, body["paymentMethod"])
	})
	t.Run("NullCoupon", func(t *testing.T) {
		e := newEnv()
		w := e.do(http.MethodPost, "/api/cart/checkout", consumerToken, `{"addressId":"a1","coupon":null}`)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, e.orders.req.CouponCode)
	})

	for _, tt := range []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{"MissingAddress", `{}`, nil, http.StatusBadRequest, `"addressId is required"`},
		{"Malformed", `{"addressId"`, nil, http.StatusBadRequest, `"malformed request body"`},
		{"EmptyBody", ``, nil, http.StatusBadRequest, `"malformed request body"`},
		{"WrongType", `{"addressId":42}`, nil, http.StatusBadRequest, `"invalid field \"addressId\""`},
		{"EmptyCart", `{"addressId":"a1"}`, order.ErrEmptyCart, http.StatusBadRequest, `"cart is empty"`},
		{"NoCart", `{"addressId":"a1"}`, cart.ErrNotFound, http.StatusNotFound, `"cart not found"`},
		{"AddressNotFound", `{"addressId":"a1"}`, user.ErrAddressNotFound, http.StatusNotFound, `"address not found"`},
		{"Persistence", `{"addressId":"a1"}`, apperr.Persist(errors.New("conn reset"), "insert order"), http.StatusInternalServerError, `"internal server error"`},
		{"Unclassified", `{"addressId":"a1"}`, errors.New("boom"), http.StatusInternalServerError, `"internal server error"`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			e.orders.err = tt.err

			w := e.do(http.MethodPost, "/api/cart/checkout", consumerToken, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, e.carts.cleared)

			body := fields(t, w)
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRegister(t *testing.T) {
	e := newEnv()

	w := e.do(http.MethodPost, "/api/auth/register", "", `{"name":"Ann","email":"ann@example.com","password":"secret1","extra":[1,2]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "ann@example.com", e.accounts.registered.Email)

	body := fields(t, w)
	assert.Equal(t, `"a"`, body["accessToken"])
	assert.Equal(t, `"r"`, body["refreshToken"])
	assert.Contains(t, body["user"], `"role":"consumer"`)

	w = e.do(http.MethodPost, "/api/auth/register", "", `{"email":"taken@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProducts(t *testing.T) {
	e := newEnv()

	w := e.do(http.MethodGet, "/api/products?search=mou&page=2&limit=5", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, product.ListParams{Search: "mou", Page: 2, Limit: 5}, e.catalog.params)

	body := fields(t, w)
	assert.Equal(t, "7", body["total"])
	assert.Equal(t, "2", body["page"])
	assert.Contains(t, body["items"], `"price":19.90`)

	w = e.do(http.MethodGet, "/api/products/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCoupons(t *testing.T) {
	e := newEnv()

	w := e.do(http.MethodPost, "/api/admin/coupons", adminToken,
		`{"code":" save20 ","discountType":"percentage","discountValue":"20","expiresAt":"2027-01-01","usageLimit":5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	c := e.coupons.created
	assert.Equal(t, "SAVE20", c.Code)
	assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)
	assert.True(t, c.DiscountValue.Equal(decimal.NewFromInt(20)))
	assert.True(t, c.IsActive)
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 5, *c.UsageLimit)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), c.ExpiresAt)

	w = e.do(http.MethodPut, "/api/admin/coupons/SAVE20", adminToken, `{"usageLimit":null,"discountValue":12.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, e.coupons.patch.ClearUsageLimit)
	assert.Nil(t, e.coupons.patch.UsageLimit)
	assert.Equal(t, "12.5", e.coupons.patch.DiscountValue.String())
}

func TestSetUserRole(t *testing.T) {
	e := newEnv()

	w := e.do(http.MethodPut, "/api/admin/users/u2/role", adminToken, `{"role":"admin"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, auth.RoleAdmin, e.accounts.role)

	w = e.do(http.MethodPut, "/api/admin/users/u2/role", adminToken, `{"role":"root"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitKey(t *testing.T) {
	h := New(Deps{Tokens: fakeTokens{}})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "ip:10.0.0.7", h.RateLimitKey(req))

	req.Header.Set("Authorization", "Bearer "+consumerToken)
	assert.Equal(t, "user:u1", h.RateLimitKey(req))

	req.Header.Set("Authorization", "Bearer forged")
	assert.Equal(t, "ip:10.0.0.7", h.RateLimitKey(req))
}

func TestStatusOf(t *testing.T) {
	for class, status := range map[apperr.Class]int{
		apperr.NotFound:     http.StatusNotFound,
		apperr.InvalidState: http.StatusBadRequest,
		apperr.Invalid:      http.StatusBadRequest,
		apperr.Unauthorized: http.StatusUnauthorized,
		apperr.Forbidden:    http.StatusForbidden,
		apperr.Persistence:  http.StatusInternalServerError,
	} {
		assert.Equal(t, status, statusOf(class), class.String())
	}
}
