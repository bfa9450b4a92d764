// Package auth holds caller identity, token issuance and password hashing.
package auth

import (
	"context"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Role is the authorization level of a user.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleConsumer || r == RoleAdmin
}

var (
	// ErrUnauthenticated is returned when a request carries no usable credentials.
	ErrUnauthenticated = apperr.New(apperr.Unauthorized, "authentication required")
	// ErrInvalidToken is returned when a token fails signature or expiry checks.
	ErrInvalidToken = apperr.New(apperr.Unauthorized, "invalid or expired token")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid email or password")
	// ErrForbidden is returned when the principal lacks the required role.
	ErrForbidden = apperr.New(apperr.Forbidden, "insufficient permissions")
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether p has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Tokens is an access/refresh token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

type principalKey struct{}

// WithPrincipal stores p in ctx. Only the HTTP authentication layer should
// call it; services receive the principal as an explicit argument.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
