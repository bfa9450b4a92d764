package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/coupon"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	q := r.URL.Query()

	active, err := queryBool(r, "isActive")
	if err != nil {
		fail(w, r, err)
		return
	}
	valid, err := queryBool(r, "valid")
	if err != nil {
		fail(w, r, err)
		return
	}

	filter := coupon.ListFilter{
		Code:         q.Get("code"),
		IsActive:     active,
		DiscountType: coupon.DiscountType(q.Get("discountType")),
		Valid:        valid,
		SortBy:       coupon.SortOrder(q.Get("sortBy")),
		Page:         page,
		Limit:        limit,
	}
	items, total, err := h.coupons.List(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, total, page, limit, func(e *jx.Encoder) {
			for i := range items {
				encodeCoupon(e, &items[i])
			}
		})
	})
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	h.couponResult(w, r, http.StatusOK)(h.coupons.Get(r.Context(), r.PathValue("coupon")))
}

func decodeCouponPatch(r *http.Request) (coupon.Patch, error) {
	var patch coupon.Patch
	err := decode(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			var s string
			s, err = d.Str()
			s = strings.ToUpper(strings.TrimSpace(s))
			patch.Code = &s
		case "discountType":
			var s string
			s, err = d.Str()
			patch.DiscountType = ptr(coupon.DiscountType(s))
		case "discountValue":
			v, derr := decodeDecimal(d)
			patch.DiscountValue, err = &v, derr
		case "expiresAt":
			t, terr := decodeTime(d)
			patch.ExpiresAt, err = &t, terr
		case "isActive":
			var b bool
			b, err = d.Bool()
			patch.IsActive = &b
		case "usageLimit":
			patch.UsageLimit, patch.ClearUsageLimit, err = decodeNullableInt(d)
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	return patch, err
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeCouponPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c := coupon.Coupon{IsActive: true, UsageLimit: patch.UsageLimit}
	if patch.Code != nil {
		c.Code = *patch.Code
	}
	if patch.DiscountType != nil {
		c.DiscountType = *patch.DiscountType
	}
	if patch.DiscountValue != nil {
		c.DiscountValue = *patch.DiscountValue
	}
	if patch.ExpiresAt != nil {
		c.ExpiresAt = *patch.ExpiresAt
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	h.couponResult(w, r, http.StatusCreated)(h.coupons.Create(r.Context(), c))
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeCouponPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.couponResult(w, r, http.StatusOK)(h.coupons.Update(r.Context(), r.PathValue("coupon"), patch))
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if _, err := h.coupons.Delete(r.Context(), r.PathValue("coupon")); err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}

func (h *Handler) couponResult(w http.ResponseWriter, r *http.Request, status int) func(*coupon.Coupon, error) {
	return func(c *coupon.Coupon, err error) {
		if err != nil {
			fail(w, r, err)
			return
		}
		respond(w, status, func(e *jx.Encoder) { encodeCoupon(e, c) })
	}
}

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Statistics(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeStatistics(e, stats) })
}
