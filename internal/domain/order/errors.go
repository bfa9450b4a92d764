package order

import (
	"fmt"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another user.
	ErrNotFound = apperr.New(apperr.NotFound, "order not found")
	// ErrEmptyCart is returned by checkout on a cart with no items.
	ErrEmptyCart = apperr.New(apperr.InvalidState, "cart is empty")
	// ErrAlreadyClosed is returned when cancelling a cancelled or returned order.
	ErrAlreadyClosed = apperr.New(apperr.InvalidState, "order is already cancelled or returned")
	// ErrAlreadyReturned is returned when returning a returned order.
	ErrAlreadyReturned = apperr.New(apperr.InvalidState, "order is already returned")
	// ErrCancelled is returned when returning a cancelled order.
	ErrCancelled = apperr.New(apperr.InvalidState, "cancelled orders cannot be returned")
)

// ProductNotFoundError indicates a cart line references a product that no
// longer exists in the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ErrorClass implements apperr.Classified.
func (e *ProductNotFoundError) ErrorClass() apperr.Class { return apperr.NotFound }

// ProductUnavailableError indicates a product is switched off for sale.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// ErrorClass implements apperr.Classified.
func (e *ProductUnavailableError) ErrorClass() apperr.Class { return apperr.InvalidState }

// InsufficientStockError indicates the catalog holds fewer units than ordered.
type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

// ErrorClass implements apperr.Classified.
func (e *InsufficientStockError) ErrorClass() apperr.Class { return apperr.InvalidState }
