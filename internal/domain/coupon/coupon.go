package coupon

import (
	"context"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage subtracts subtotal*value/100.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts value from the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a supported discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrNotFound is returned when no coupon matches a code or id.
	ErrNotFound = apperr.New(apperr.NotFound, "coupon not found")
	// ErrUsageLimitReached is returned when usedCount already equals usageLimit.
	ErrUsageLimitReached = apperr.New(apperr.InvalidState, "coupon usage limit exceeded")
	// ErrInactive is returned by the strict policy for a disabled coupon.
	ErrInactive = apperr.New(apperr.InvalidState, "coupon is not active")
	// ErrExpired is returned by the strict policy for an expired coupon.
	ErrExpired = apperr.New(apperr.InvalidState, "coupon has expired")
	// ErrCodeTaken is returned when creating a coupon whose code exists.
	ErrCodeTaken = apperr.New(apperr.InvalidState, "coupon code already exists")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)

var hundred = decimal.NewFromInt(100)

// Coupon is a discount definition together with its usage counter.
type Coupon struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	ExpiresAt     time.Time
	IsActive      bool
	// UsageLimit is nil when the coupon can be redeemed any number of times.
	UsageLimit *int
	UsedCount  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Exhausted reports whether the coupon has no redemptions left.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// Expired reports whether expiresAt is not strictly after now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Discount returns the amount the coupon takes off subtotal. It is not
// clamped: a fixed coupon larger than subtotal yields a discount above it.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountPercentage:
		return subtotal.Mul(c.DiscountValue).Div(hundred).Round(2)
	case DiscountFixed:
		return c.DiscountValue.Round(2)
	default:
		return decimal.Zero
	}
}

// Validate checks the fields an admin may set.
func (c *Coupon) Validate() error {
	switch {
	case !codePattern.MatchString(c.Code):
		return apperr.New(apperr.Invalid, "coupon code must be 3-20 uppercase letters or digits")
	case !c.DiscountType.Valid():
		return apperr.Newf(apperr.Invalid, "unsupported discount type %q", c.DiscountType)
	case !c.DiscountValue.IsPositive():
		return apperr.New(apperr.Invalid, "discount value must be positive")
	case c.DiscountType == DiscountPercentage && c.DiscountValue.GreaterThan(hundred):
		return apperr.New(apperr.Invalid, "percentage discount must not exceed 100")
	case c.ExpiresAt.IsZero():
		return apperr.New(apperr.Invalid, "expiry date is required")
	case c.UsageLimit != nil && *c.UsageLimit <= 0:
		return apperr.New(apperr.Invalid, "usage limit must be a positive integer")
	case c.UsageLimit != nil && c.UsedCount > *c.UsageLimit:
		return apperr.New(apperr.Invalid, "usage limit is below the current usage count")
	}
	return nil
}

// SortOrder selects the ordering of coupon listings.
type SortOrder string

const (
	SortNewest        SortOrder = "newest"
	SortDiscountValue SortOrder = "discountValue"
)

// ListFilter narrows admin coupon listings. Nil pointers mean "any".
type ListFilter struct {
	// Code matches case-insensitively as a substring.
	Code         string
	IsActive     *bool
	DiscountType DiscountType
	// Valid selects coupons that are (true) or are not (false) past expiry.
	Valid  *bool
	SortBy SortOrder
	Page   int
	Limit  int
	Now    time.Time
}

// Repository provides coupon storage.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByCodeForUpdate is FindByCode that also locks the row until the
	// surrounding atomic unit ends, serializing redemptions per coupon.
	FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, filter ListFilter) ([]Coupon, int, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	// Redeem increments usedCount unless that would exceed usageLimit, in
	// which case it returns ErrUsageLimitReached.
	Redeem(ctx context.Context, id string) error
}
