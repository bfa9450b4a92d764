// Package user holds accounts and their embedded address book.
package user

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = apperr.New(apperr.NotFound, "user not found")
	// ErrEmailTaken is returned on registration with an existing email.
	ErrEmailTaken = apperr.New(apperr.InvalidState, "user already exists")
	// ErrAddressNotFound is returned when an address id is not in the user's book.
	ErrAddressNotFound = apperr.New(apperr.NotFound, "address not found")
)

// Address is a shipping address embedded in a User.
type Address struct {
	ID          string
	Street      string
	HouseNumber *int
	PostalCode  int
	IsDefault   bool
}

// Validate checks address field constraints.
func (a Address) Validate() error {
	switch {
	case len(strings.TrimSpace(a.Street)) < 5:
		return apperr.New(apperr.Invalid, "street must be at least 5 characters")
	case a.HouseNumber != nil && *a.HouseNumber < 1:
		return apperr.New(apperr.Invalid, "house number must be positive")
	case a.PostalCode < 10000 || a.PostalCode > 999999:
		return apperr.New(apperr.Invalid, "postal code must have 5 or 6 digits")
	}
	return nil
}

// AddressPatch holds optional address fields for a partial update.
type AddressPatch struct {
	Street      *string
	HouseNumber *int
	PostalCode  *int
	IsDefault   *bool
}

// User is a storefront account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
	PhoneNumber  string
	Addresses    []Address
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the identity tokens are issued for.
func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

// Address returns the address with the given id.
func (u *User) Address(id string) (Address, bool) {
	for _, a := range u.Addresses {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

// AddAddress appends a to the address book. When a is the default, every
// other address stops being one.
func (u *User) AddAddress(a Address) (Address, error) {
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	if a.IsDefault {
		u.clearDefault()
	}
	u.Addresses = append(u.Addresses, a)
	return a, nil
}

// UpdateAddress applies patch to the address with the given id.
func (u *User) UpdateAddress(id string, patch AddressPatch) (Address, error) {
	idx := u.addressIndex(id)
	if idx < 0 {
		return Address{}, ErrAddressNotFound
	}
	a := u.Addresses[idx]
	if patch.Street != nil {
		a.Street = *patch.Street
	}
	if patch.HouseNumber != nil {
		n := *patch.HouseNumber
		a.HouseNumber = &n
	}
	if patch.PostalCode != nil {
		a.PostalCode = *patch.PostalCode
	}
	if patch.IsDefault != nil {
		a.IsDefault = *patch.IsDefault
	}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	if a.IsDefault {
		u.clearDefault()
	}
	u.Addresses[idx] = a
	return a, nil
}

// RemoveAddress deletes the address with the given id.
func (u *User) RemoveAddress(id string) error {
	idx := u.addressIndex(id)
	if idx < 0 {
		return ErrAddressNotFound
	}
	u.Addresses = append(u.Addresses[:idx], u.Addresses[idx+1:]...)
	return nil
}

// SortedAddresses returns the address book with the default address first,
// keeping insertion order otherwise.
func (u *User) SortedAddresses() []Address {
	out := append([]Address(nil), u.Addresses...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsDefault && !out[j].IsDefault
	})
	return out
}

func (u *User) addressIndex(id string) int {
	for i := range u.Addresses {
		if u.Addresses[i].ID == id {
			return i
		}
	}
	return -1
}

func (u *User) clearDefault() {
	for i := range u.Addresses {
		u.Addresses[i].IsDefault = false
	}
}

// Repository persists users together with their addresses.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Update saves profile fields and replaces the address book.
	Update(ctx context.Context, u *User) error
	UpdateRole(ctx context.Context, id string, role auth.Role) error
}
