package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func TestCoupon_Discount(t *testing.T) {
	tests := []struct {
		name     string
		typ      DiscountType
		value    string
		subtotal string
		want     string
	}{
		{name: "percentage twenty of hundred", typ: DiscountPercentage, value: "20", subtotal: "100", want: "20"},
		{name: "percentage rounds to cents", typ: DiscountPercentage, value: "15", subtotal: "33.33", want: "5"},
		{name: "percentage full", typ: DiscountPercentage, value: "100", subtotal: "42.10", want: "42.10"},
		{name: "fixed", typ: DiscountFixed, value: "9", subtotal: "100", want: "9"},
		{name: "fixed exceeds subtotal", typ: DiscountFixed, value: "50", subtotal: "20", want: "50"},
		{name: "unknown type", typ: "free_lowest", value: "50", subtotal: "20", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Coupon{DiscountType: tt.typ, DiscountValue: decimal.RequireFromString(tt.value)}
			got := c.Discount(decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestCoupon_ExhaustedExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&Coupon{}).Exhausted(), "no limit is never exhausted")
	assert.False(t, (&Coupon{UsageLimit: intPtr(3), UsedCount: 2}).Exhausted())
	assert.True(t, (&Coupon{UsageLimit: intPtr(3), UsedCount: 3}).Exhausted())

	assert.True(t, (&Coupon{ExpiresAt: now}).Expired(now), "expiry must be strictly in the future")
	assert.False(t, (&Coupon{ExpiresAt: now.Add(time.Second)}).Expired(now))
}

func TestCoupon_Validate(t *testing.T) {
	valid := func() Coupon {
		return Coupon{
			Code:          "SUMMER25",
			DiscountType:  DiscountPercentage,
			DiscountValue: decimal.NewFromInt(25),
			ExpiresAt:     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			IsActive:      true,
		}
	}

	c := valid()
	assert.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(c *Coupon)
	}{
		{name: "lowercase code", mutate: func(c *Coupon) { c.Code = "summer25" }},
		{name: "short code", mutate: func(c *Coupon) { c.Code = "AB" }},
		{name: "symbol in code", mutate: func(c *Coupon) { c.Code = "SAVE-10" }},
		{name: "bad type", mutate: func(c *Coupon) { c.DiscountType = "bogo" }},
		{name: "zero value", mutate: func(c *Coupon) { c.DiscountValue = decimal.Zero }},
		{name: "percentage above hundred", mutate: func(c *Coupon) { c.DiscountValue = decimal.NewFromInt(101) }},
		{name: "missing expiry", mutate: func(c *Coupon) { c.ExpiresAt = time.Time{} }},
		{name: "zero usage limit", mutate: func(c *Coupon) { c.UsageLimit = intPtr(0) }},
		{name: "limit below used", mutate: func(c *Coupon) { c.UsageLimit = intPtr(1); c.UsedCount = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			assert.True(t, apperr.Is(err, apperr.Invalid), "got %v", err)
		})
	}
}
