package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/user"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var p user.RegisterParams
	err := decode(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "email":
			p.Email, err = d.Str()
		case "password":
			p.Password, err = d.Str()
		case "phoneNumber":
			p.PhoneNumber, err = d.Str()
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	u, tokens, err := h.accounts.Register(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("user")
		encodeUser(e, u)
		encodeTokens(e, tokens)
		e.ObjEnd()
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	err := decode(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "email":
			email, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	u, tokens, err := h.accounts.Login(r.Context(), email, password)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("user")
		encodeUser(e, u)
		encodeTokens(e, tokens)
		e.ObjEnd()
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	err := decode(r, func(d *jx.Decoder, key string) (err error) {
		if key != "refreshToken" {
			return d.Skip()
		}
		token, err = d.Str()
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if token == "" {
		fail(w, r, apperr.New(apperr.Invalid, "refresh token is required"))
		return
	}

	tokens, err := h.accounts.Refresh(r.Context(), token)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeTokens(e, tokens)
		e.ObjEnd()
	})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Profile(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch user.ProfilePatch
	err := decode(r, func(d *jx.Decoder, key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case "name":
			if s, err = d.Str(); err == nil {
				patch.Name = &s
			}
		case "phoneNumber":
			if s, err = d.Str(); err == nil {
				patch.PhoneNumber = &s
			}
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.accounts.UpdateProfile(r.Context(), principal(r).UserID, patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.accounts.Addresses(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, a := range addrs {
			encodeAddress(e, a)
		}
		e.ArrEnd()
	})
}

// decodeAddressPatch reads an address body. For creation every present
// field is applied to a zero Address.
func decodeAddressPatch(r *http.Request) (user.AddressPatch, error) {
	var patch user.AddressPatch
	err := decode(r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "street":
			var s string
			if s, err = d.Str(); err == nil {
				patch.Street = &s
			}
		case "houseNumber":
			patch.HouseNumber, _, err = decodeNullableInt(d)
		case "postalCode":
			var n int
			if n, err = d.Int(); err == nil {
				patch.PostalCode = &n
			}
		case "isDefault":
			var b bool
			if b, err = d.Bool(); err == nil {
				patch.IsDefault = &b
			}
		default:
			return d.Skip()
		}
		return errField(err, key)
	})
	return patch, err
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeAddressPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var a user.Address
	if patch.Street != nil {
		a.Street = *patch.Street
	}
	a.HouseNumber = patch.HouseNumber
	if patch.PostalCode != nil {
		a.PostalCode = *patch.PostalCode
	}
	if patch.IsDefault != nil {
		a.IsDefault = *patch.IsDefault
	}

	created, err := h.accounts.AddAddress(r.Context(), principal(r).UserID, a)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeAddress(e, created) })
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeAddressPatch(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	updated, err := h.accounts.UpdateAddress(r.Context(), principal(r).UserID, r.PathValue("addressId"), patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeAddress(e, updated) })
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAddress(r.Context(), principal(r).UserID, r.PathValue("addressId")); err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}

func (h *Handler) setUserRole(w http.ResponseWriter, r *http.Request) {
	var role auth.Role
	err := decode(r, func(d *jx.Decoder, key string) error {
		if key != "role" {
			return d.Skip()
		}
		s, err := d.Str()
		role = auth.Role(s)
		return errField(err, key)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.accounts.SetRole(r.Context(), r.PathValue("userId"), role); err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}
