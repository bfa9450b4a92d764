package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	orders, total, err := h.orders.ListForUser(r.Context(), principal(r).UserID, page, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, orders, total, page, limit)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	h.orderResult(w, r)(h.orders.GetForUser(r.Context(), principal(r).UserID, r.PathValue("orderId")))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderResult(w, r)(h.orders.Cancel(r.Context(), principal(r).UserID, r.PathValue("orderId")))
}

func (h *Handler) returnOrder(w http.ResponseWriter, r *http.Request) {
	h.orderResult(w, r)(h.orders.Return(r.Context(), principal(r).UserID, r.PathValue("orderId")))
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	q := r.URL.Query()
	orders, total, err := h.orders.List(r.Context(), order.Filter{
		UserID: q.Get("userId"),
		Status: order.Status(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, orders, total, page, limit)
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	h.orderResult(w, r)(h.orders.Get(r.Context(), r.PathValue("orderId")))
}

func (h *Handler) adminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var status order.Status
	err := decode(r, func(d *jx.Decoder, key string) error {
		if key != "status" && key != "orderStatus" {
			return d.Skip()
		}
		s, err := d.Str()
		status = order.Status(s)
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.orderResult(w, r)(h.orders.UpdateStatus(r.Context(), r.PathValue("orderId"), status))
}

func (h *Handler) orderResult(w http.ResponseWriter, r *http.Request) func(*order.Order, error) {
	return func(o *order.Order, err error) {
		if err != nil {
			fail(w, r, err)
			return
		}
		respond(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
	}
}

func writeOrders(w http.ResponseWriter, orders []order.Order, total, page, limit int) {
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, total, page, limit, func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}
