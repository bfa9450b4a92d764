package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// TokenConfig configures an Issuer.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type claims struct {
	jwt.RegisteredClaims
	Role Role   `json:"role,omitempty"`
	Kind string `json:"kind"`
}

// Issuer signs and verifies HS256 JWTs.
type Issuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewIssuer returns an Issuer. Both secrets must be non-empty.
func NewIssuer(cfg TokenConfig) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// Issue returns a fresh access/refresh pair for p.
func (i *Issuer) Issue(p Principal) (Tokens, error) {
	access, err := i.sign(p, kindAccess, i.cfg.AccessTTL, i.cfg.AccessSecret)
	if err != nil {
		return Tokens{}, errors.Wrap(err, "sign access token")
	}
	refresh, err := i.sign(Principal{UserID: p.UserID}, kindRefresh, i.cfg.RefreshTTL, i.cfg.RefreshSecret)
	if err != nil {
		return Tokens{}, errors.Wrap(err, "sign refresh token")
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token and returns its principal.
func (i *Issuer) VerifyAccess(token string) (Principal, error) {
	c, err := i.parse(token, kindAccess, i.cfg.AccessSecret)
	if err != nil {
		return Principal{}, err
	}
	if !c.Role.Valid() {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: c.Subject, Role: c.Role}, nil
}

// VerifyRefresh validates a refresh token and returns the user id it was
// issued for. The role is re-read from the store on refresh.
func (i *Issuer) VerifyRefresh(token string) (string, error) {
	c, err := i.parse(token, kindRefresh, i.cfg.RefreshSecret)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

func (i *Issuer) sign(p Principal, kind string, ttl time.Duration, secret []byte) (string, error) {
	now := i.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: p.Role,
		Kind: kind,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

func (i *Issuer) parse(token, kind string, secret []byte) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if c.Kind != kind || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}
