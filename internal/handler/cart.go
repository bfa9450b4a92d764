package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), principal(r).UserID); err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}

func decodeQuantity(r *http.Request, productID *string) (int, error) {
	quantity := 1
	err := decode(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "productId":
			if productID == nil {
				return d.Skip()
			}
			*productID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	return quantity, err
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var productID string
	quantity, err := decodeQuantity(r, &productID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if productID == "" {
		fail(w, r, apperr.New(apperr.Invalid, "productId is required"))
		return
	}
	h.cartResult(w, r)(h.carts.AddItem(r.Context(), principal(r).UserID, productID, quantity))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	quantity, err := decodeQuantity(r, nil)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.cartResult(w, r)(h.carts.UpdateItem(r.Context(), principal(r).UserID, r.PathValue("productId"), quantity))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.cartResult(w, r)(h.carts.RemoveItem(r.Context(), principal(r).UserID, r.PathValue("productId")))
}

func (h *Handler) cartResult(w http.ResponseWriter, r *http.Request) func(*cart.Priced, error) {
	return func(c *cart.Priced, err error) {
		if err != nil {
			fail(w, r, err)
			return
		}
		respond(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
	}
}

// checkout places an order from the caller's cart and empties the cart in
// the same atomic unit.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	req := order.CheckoutRequest{UserID: principal(r).UserID}
	err := decode(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "addressId":
			req.AddressID, err = d.Str()
		case "coupon", "couponCode":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.CouponCode, err = d.Str()
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.AddressID == "" {
		fail(w, r, apperr.New(apperr.Invalid, "addressId is required"))
		return
	}

	var placed *order.Order
	err = h.carts.CheckoutWith(r.Context(), req.UserID, func(ctx context.Context) error {
		o, err := h.orders.Checkout(ctx, req)
		placed = o
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, placed) })
}
