// Package handler exposes the storefront services over a JSON REST API.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/dashboard"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Accounts is the subset of user.Service the API needs.
type Accounts interface {
	Register(ctx context.Context, p user.RegisterParams) (*user.User, auth.Tokens, error)
	Login(ctx context.Context, email, password string) (*user.User, auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error)
	Profile(ctx context.Context, userID string) (*user.User, error)
	UpdateProfile(ctx context.Context, userID string, patch user.ProfilePatch) (*user.User, error)
	Addresses(ctx context.Context, userID string) ([]user.Address, error)
	AddAddress(ctx context.Context, userID string, a user.Address) (user.Address, error)
	UpdateAddress(ctx context.Context, userID, addressID string, patch user.AddressPatch) (user.Address, error)
	DeleteAddress(ctx context.Context, userID, addressID string) error
	SetRole(ctx context.Context, userID string, role auth.Role) error
}

type Catalog interface {
	List(ctx context.Context, params product.ListParams) ([]product.Product, int, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, p product.Product) (*product.Product, error)
	Update(ctx context.Context, id string, patch product.Patch) (*product.Product, error)
	Delete(ctx context.Context, id string) error
}

type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Priced, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Priced, error)
	UpdateItem(ctx context.Context, userID, productID string, quantity int) (*cart.Priced, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Priced, error)
	Clear(ctx context.Context, userID string) error
	CheckoutWith(ctx context.Context, userID string, place func(ctx context.Context) error) error
}

type Orders interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	ListForUser(ctx context.Context, userID string, page, limit int) ([]order.Order, int, error)
	GetForUser(ctx context.Context, userID, orderID string) (*order.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (*order.Order, error)
	Return(ctx context.Context, userID, orderID string) (*order.Order, error)
	Get(ctx context.Context, orderID string) (*order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, int, error)
	UpdateStatus(ctx context.Context, orderID string, status order.Status) (*order.Order, error)
}

type Coupons interface {
	Create(ctx context.Context, c coupon.Coupon) (*coupon.Coupon, error)
	Get(ctx context.Context, idOrCode string) (*coupon.Coupon, error)
	List(ctx context.Context, filter coupon.ListFilter) ([]coupon.Coupon, int, error)
	Update(ctx context.Context, idOrCode string, patch coupon.Patch) (*coupon.Coupon, error)
	Delete(ctx context.Context, idOrCode string) (string, error)
}

type Dashboard interface {
	Statistics(ctx context.Context) (*dashboard.Statistics, error)
}

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	VerifyAccess(token string) (auth.Principal, error)
}

var (
	_ Accounts      = (*user.Service)(nil)
	_ Catalog       = (*product.Service)(nil)
	_ Carts         = (*cart.Service)(nil)
	_ Orders        = (*order.Service)(nil)
	_ Coupons       = (*coupon.Service)(nil)
	_ Dashboard     = (*dashboard.Service)(nil)
	_ TokenVerifier = (*auth.Issuer)(nil)
)

// Deps are the services behind the API.
type Deps struct {
	Accounts  Accounts
	Catalog   Catalog
	Carts     Carts
	Orders    Orders
	Coupons   Coupons
	Dashboard Dashboard
	Tokens    TokenVerifier
}

// Handler serves the /api routes.
type Handler struct {
	accounts  Accounts
	catalog   Catalog
	carts     Carts
	orders    Orders
	coupons   Coupons
	dashboard Dashboard
	tokens    TokenVerifier
}

func New(deps Deps) *Handler {
	return &Handler{
		accounts:  deps.Accounts,
		catalog:   deps.Catalog,
		carts:     deps.Carts,
		orders:    deps.Orders,
		coupons:   deps.Coupons,
		dashboard: deps.Dashboard,
		tokens:    deps.Tokens,
	}
}

// Register mounts every route on mux. Route patterns are reported to the
// telemetry middleware through httpmiddleware.MakeRouteFinder.
func (h *Handler) Register(mux *http.ServeMux) {
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, fn)
	}
	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.authenticate(fn))
	}
	admin := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.authenticate(requireAdmin(fn)))
	}

	public("POST /api/auth/register", h.register)
	public("POST /api/auth/login", h.login)
	public("POST /api/auth/refresh", h.refresh)

	authed("GET /api/profile", h.getProfile)
	authed("PUT /api/profile", h.updateProfile)
	authed("GET /api/profile/addresses", h.listAddresses)
	authed("POST /api/profile/addresses", h.addAddress)
	authed("PUT /api/profile/addresses/{addressId}", h.updateAddress)
	authed("DELETE /api/profile/addresses/{addressId}", h.deleteAddress)

	public("GET /api/products", h.listProducts)
	public("GET /api/products/{productId}", h.getProduct)

	authed("GET /api/cart", h.getCart)
	authed("DELETE /api/cart", h.clearCart)
	authed("POST /api/cart/items", h.addCartItem)
	authed("PUT /api/cart/items/{productId}", h.updateCartItem)
	authed("DELETE /api/cart/items/{productId}", h.removeCartItem)
	authed("POST /api/cart/checkout", h.checkout)

	authed("GET /api/orders", h.listOrders)
	authed("GET /api/orders/{orderId}", h.getOrder)
	authed("POST /api/orders/{orderId}/cancel", h.cancelOrder)
	authed("POST /api/orders/{orderId}/return", h.returnOrder)

	admin("POST /api/admin/products", h.createProduct)
	admin("PUT /api/admin/products/{productId}", h.updateProduct)
	admin("DELETE /api/admin/products/{productId}", h.deleteProduct)

	admin("GET /api/admin/coupons", h.listCoupons)
	admin("POST /api/admin/coupons", h.createCoupon)
	admin("GET /api/admin/coupons/{coupon}", h.getCoupon)
	admin("PUT /api/admin/coupons/{coupon}", h.updateCoupon)
	admin("DELETE /api/admin/coupons/{coupon}", h.deleteCoupon)

	admin("GET /api/admin/orders", h.adminListOrders)
	admin("GET /api/admin/orders/{orderId}", h.adminGetOrder)
	admin("PUT /api/admin/orders/{orderId}", h.adminUpdateOrder)

	admin("PUT /api/admin/users/{userId}/role", h.setUserRole)
	admin("GET /api/admin/dashboard", h.getDashboard)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
