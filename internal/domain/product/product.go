package product

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.NotFound, "product not found")
	// ErrInsufficientStock is returned when a stock decrement would go below zero.
	ErrInsufficientStock = apperr.New(apperr.InvalidState, "insufficient stock")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Quantity    int
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListParams filters and paginates catalog listings.
type ListParams struct {
	Search string
	Page   int
	Limit  int
}

// Offset returns the row offset for the requested page.
func (p ListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Repository defines catalog storage. Reads inside an atomic unit observe
// the unit's snapshot.
type Repository interface {
	List(ctx context.Context, params ListParams) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// AdjustStock adds delta to the product's quantity. A negative delta
	// that would drive the quantity below zero fails with
	// ErrInsufficientStock and changes nothing.
	AdjustStock(ctx context.Context, id string, delta int) error
}

// Validate checks the invariants a stored product must hold.
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return apperr.New(apperr.Invalid, "product name is required")
	case p.Price.IsNegative():
		return apperr.New(apperr.Invalid, "product price must not be negative")
	case p.Quantity < 0:
		return apperr.New(apperr.Invalid, "product quantity must not be negative")
	}
	return nil
}
