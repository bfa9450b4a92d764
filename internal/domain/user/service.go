package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/uow"
)

const minPasswordLen = 6

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(p auth.Principal) (auth.Tokens, error)
	VerifyRefresh(token string) (string, error)
}

// RegisterParams is the input of Register.
type RegisterParams struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
}

// ProfilePatch holds optional profile fields.
type ProfilePatch struct {
	Name        *string
	PhoneNumber *string
}

// Service implements account, profile and address book operations.
type Service struct {
	users  Repository
	uow    uow.UnitOfWork
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time
	newID  func() string
}

// NewService returns a user Service.
func NewService(users Repository, unit uow.UnitOfWork, hasher PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{
		users:  users,
		uow:    unit,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Register creates a consumer account. The email check and the insert run
// as one atomic unit, so a failure leaves no partial user behind.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*User, auth.Tokens, error) {
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return nil, auth.Tokens{}, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, auth.Tokens{}, apperr.New(apperr.Invalid, "name is required")
	}
	if len(p.Password) < minPasswordLen {
		return nil, auth.Tokens{}, apperr.Newf(apperr.Invalid, "password must be at least %d characters", minPasswordLen)
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, auth.Tokens{}, err
	}

	now := s.now().UTC()
	u := &User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleConsumer,
		PhoneNumber:  strings.TrimSpace(p.PhoneNumber),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return apperr.Persist(err, "check email")
		}
		if exists {
			return ErrEmailTaken
		}
		return apperr.Persist(s.users.Create(ctx, u), "create user")
	}); err != nil {
		return nil, auth.Tokens{}, err
	}

	tokens, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, auth.Tokens{}, err
	}
	return u, tokens, nil
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*User, auth.Tokens, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.Tokens{}, auth.ErrInvalidCredentials
		}
		return nil, auth.Tokens{}, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, auth.Tokens{}, auth.ErrInvalidCredentials
	}
	tokens, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, auth.Tokens{}, err
	}
	return u, tokens, nil
}

// Refresh exchanges a refresh token for a new pair carrying the user's
// current role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return auth.Tokens{}, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Tokens{}, auth.ErrInvalidToken
		}
		return auth.Tokens{}, err
	}
	return s.tokens.Issue(u.Principal())
}

// Profile returns the user's account.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	return s.users.FindByID(ctx, userID)
}

// UpdateProfile changes name and phone number.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*User, error) {
	return s.mutate(ctx, userID, func(u *User) error {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return apperr.New(apperr.Invalid, "name is required")
			}
			u.Name = name
		}
		if patch.PhoneNumber != nil {
			u.PhoneNumber = strings.TrimSpace(*patch.PhoneNumber)
		}
		return nil
	})
}

// Addresses lists the user's addresses, default first.
func (s *Service) Addresses(ctx context.Context, userID string) ([]Address, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.SortedAddresses(), nil
}

// AddAddress adds an address to the user's book.
func (s *Service) AddAddress(ctx context.Context, userID string, a Address) (Address, error) {
	a.ID = s.newID()
	var added Address
	_, err := s.mutate(ctx, userID, func(u *User) error {
		var err error
		added, err = u.AddAddress(a)
		return err
	})
	return added, err
}

// UpdateAddress applies patch to one of the user's addresses.
func (s *Service) UpdateAddress(ctx context.Context, userID, addressID string, patch AddressPatch) (Address, error) {
	var updated Address
	_, err := s.mutate(ctx, userID, func(u *User) error {
		var err error
		updated, err = u.UpdateAddress(addressID, patch)
		return err
	})
	return updated, err
}

// DeleteAddress removes one of the user's addresses.
func (s *Service) DeleteAddress(ctx context.Context, userID, addressID string) error {
	_, err := s.mutate(ctx, userID, func(u *User) error {
		return u.RemoveAddress(addressID)
	})
	return err
}

// SetRole changes a user's role.
func (s *Service) SetRole(ctx context.Context, userID string, role auth.Role) error {
	if !role.Valid() {
		return apperr.Newf(apperr.Invalid, "unknown role %q", role)
	}
	return s.users.UpdateRole(ctx, userID, role)
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(u *User) error) (*User, error) {
	var u *User
	err := s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		var err error
		if u, err = s.users.FindByID(ctx, userID); err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = s.now().UTC()
		return s.users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.New(apperr.Invalid, "invalid email address")
	}
	return email, nil
}
