package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const maxBodySize = 1 << 20

var errMalformedBody = apperr.New(apperr.Invalid, "malformed request body")

// statusOf maps an error class to its HTTP status.
func statusOf(c apperr.Class) int {
	switch c {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidState, apperr.Invalid:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"code","message"}. Server-side failures are logged and
// their details withheld from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(apperr.ClassOf(err))
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	httpmiddleware.WriteError(w, status, apperr.Message(err))
}

// respond writes a JSON body produced by enc.
func respond(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	enc(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decode reads the request body as a JSON object, calling field for every
// key. Unknown keys must be skipped by field.
func decode(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperr.Wrap(apperr.Invalid, err, "read request body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errMalformedBody
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		if _, ok := apperr.Find(err); ok {
			return err
		}
		return apperr.Wrap(apperr.Invalid, err, "malformed request body")
	}
	return nil
}

// pagination reads page and limit query parameters. Missing or malformed
// values are left at zero for the service to default.
func pagination(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Newf(apperr.Invalid, "query parameter %q must be a boolean", key)
	}
	return &v, nil
}

// authenticate resolves the bearer token into a principal.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			fail(w, r, auth.ErrUnauthenticated)
			return
		}
		p, err := h.tokens.VerifyAccess(strings.TrimSpace(token))
		if err != nil {
			fail(w, r, err)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFrom(r.Context()); !ok || !p.IsAdmin() {
			fail(w, r, auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// principal returns the caller; routes registered through authenticate
// always have one.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// RateLimitKey buckets authenticated callers by user and everyone else by
// client address. The principal is not yet in the context when the limiter
// runs, so the token is verified here as well.
func (h *Handler) RateLimitKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if p, err := h.tokens.VerifyAccess(strings.TrimSpace(token)); err == nil {
			return "user:" + p.UserID
		}
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}

// errField wraps a decode error with the offending field name.
func errField(err error, key string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.Find(err); ok {
		return err
	}
	return apperr.Wrap(apperr.Invalid, errors.Wrap(err, key), "invalid field "+strconv.Quote(key))
}
