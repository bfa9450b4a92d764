package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/dashboard"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Money is written as a JSON number with two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(money(d))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

// encodePage writes {"items":[...],"total":n,"page":p,"limit":l}.
func encodePage(e *jx.Encoder, total, page, limit int, items func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	items(e)
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(total)
	if page > 0 {
		e.FieldStart("page")
		e.Int(page)
	}
	if limit > 0 {
		e.FieldStart("limit")
		e.Int(limit)
	}
	e.ObjEnd()
}

func encodeTokens(e *jx.Encoder, t auth.Tokens) {
	e.FieldStart("accessToken")
	e.Str(t.AccessToken)
	e.FieldStart("refreshToken")
	e.Str(t.RefreshToken)
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("role")
	e.Str(string(u.Role))
	if u.PhoneNumber != "" {
		e.FieldStart("phoneNumber")
		e.Str(u.PhoneNumber)
	}
	e.FieldStart("addresses")
	e.ArrStart()
	for _, a := range u.SortedAddresses() {
		encodeAddress(e, a)
	}
	e.ArrEnd()
	e.FieldStart("createdAt")
	encodeTime(e, u.CreatedAt)
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a user.Address) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID)
	e.FieldStart("street")
	e.Str(a.Street)
	if a.HouseNumber != nil {
		e.FieldStart("houseNumber")
		e.Int(*a.HouseNumber)
	}
	e.FieldStart("postalCode")
	e.Int(a.PostalCode)
	e.FieldStart("isDefault")
	e.Bool(a.IsDefault)
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.FieldStart("isAvailable")
	e.Bool(p.IsAvailable)
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Priced) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range c.Lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ID)
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, l.UnitPrice)
		e.FieldStart("subtotal")
		encodeMoney(e, l.Subtotal())
		e.FieldStart("product")
		if l.Product != nil {
			encodeProduct(e, l.Product)
		} else {
			e.Null()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalPrice")
	encodeMoney(e, c.Total)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		encodeMoney(e, it.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("discount")
	encodeMoney(e, o.Discount)
	e.FieldStart("totalPrice")
	encodeMoney(e, o.TotalPrice)
	if o.CouponID != "" {
		e.FieldStart("couponId")
		e.Str(o.CouponID)
	}
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("orderStatus")
	e.Str(string(o.OrderStatus))
	e.FieldStart("shippingAddress")
	e.ObjStart()
	e.FieldStart("street")
	e.Str(o.ShippingAddress.Street)
	if o.ShippingAddress.HouseNumber != nil {
		e.FieldStart("houseNumber")
		e.Int(*o.ShippingAddress.HouseNumber)
	}
	e.FieldStart("postalCode")
	e.Int(o.ShippingAddress.PostalCode)
	e.ObjEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	e.FieldStart("discountValue")
	encodeMoney(e, c.DiscountValue)
	e.FieldStart("expiresAt")
	encodeTime(e, c.ExpiresAt)
	e.FieldStart("isActive")
	e.Bool(c.IsActive)
	e.FieldStart("usageLimit")
	if c.UsageLimit != nil {
		e.Int(*c.UsageLimit)
	} else {
		e.Null()
	}
	e.FieldStart("usedCount")
	e.Int(c.UsedCount)
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.ObjEnd()
}

func encodeStatistics(e *jx.Encoder, s *dashboard.Statistics) {
	e.ObjStart()
	e.FieldStart("totalUsers")
	e.Int(s.TotalUsers)
	e.FieldStart("totalProducts")
	e.Int(s.TotalProducts)
	e.FieldStart("totalOrders")
	e.Int(s.TotalOrders)
	e.FieldStart("totalCoupons")
	e.Int(s.TotalCoupons)
	e.FieldStart("revenue")
	encodeMoney(e, s.Revenue)
	e.ObjEnd()
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// decodeNullableInt returns (nil, true) for an explicit null.
func decodeNullableInt(d *jx.Decoder) (v *int, null bool, err error) {
	if d.Next() == jx.Null {
		return nil, true, d.Null()
	}
	n, err := d.Int()
	if err != nil {
		return nil, false, err
	}
	return &n, false, nil
}

func ptr[T any](v T) *T { return &v }
