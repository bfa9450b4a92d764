package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	params := product.ListParams{
		Search: r.URL.Query().Get("search"),
		Page:   page,
		Limit:  limit,
	}
	items, total, err := h.catalog.List(r.Context(), params)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, total, page, limit, func(e *jx.Encoder) {
			for i := range items {
				encodeProduct(e, &items[i])
			}
		})
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), r.PathValue("productId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func decodeProductPatch(r *http.Request) (product.Patch, error) {
	var patch product.Patch
	err := decode(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			var s string
			s, err = d.Str()
			patch.Name = &s
		case "description":
			var s string
			s, err = d.Str()
			patch.Description = &s
		case "category":
			var s string
			s, err = d.Str()
			patch.Category = &s
		case "price":
			v, derr := decodeDecimal(d)
			patch.Price, err = &v, derr
		case "quantity":
			var n int
			n, err = d.Int()
			patch.Quantity = &n
		case "isAvailable":
			var b bool
			b, err = d.Bool()
			patch.IsAvailable = &b
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	return patch, err
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeProductPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p := product.Product{IsAvailable: true}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.IsAvailable != nil {
		p.IsAvailable = *patch.IsAvailable
	}

	created, err := h.catalog.Create(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, created) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeProductPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	updated, err := h.catalog.Update(r.Context(), r.PathValue("productId"), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, updated) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("productId")); err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}
