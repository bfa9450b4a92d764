// Package cart implements the per-user shopping cart. The cart total is never
// stored: it is recomputed from current catalog prices on every read.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	MinQuantity = 1
	MaxQuantity = 100
)

var (
	// ErrNotFound is returned when the user has no cart yet.
	ErrNotFound = apperr.New(apperr.NotFound, "cart not found")
	// ErrItemNotFound is returned when a product is not in the cart.
	ErrItemNotFound = apperr.New(apperr.NotFound, "item not found in cart")
	// ErrInvalidQuantity is returned for quantities outside [MinQuantity, MaxQuantity].
	ErrInvalidQuantity = apperr.Newf(apperr.Invalid, "quantity must be between %d and %d", MinQuantity, MaxQuantity)
)

// Item is one cart line. ID is stable for the lifetime of the line.
type Item struct {
	ID        string
	ProductID string
	Quantity  int
}

// Cart is the mutable staging area owned by exactly one user.
type Cart struct {
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// ProductIDs returns the product id of every line in cart order.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	return ids
}

// Add puts quantity units of productID into the cart, merging with an
// existing line for the same product. newID names a new line.
func (c *Cart) Add(productID string, quantity int, newID func() string) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			merged := c.Items[i].Quantity + quantity
			if merged > MaxQuantity {
				return ErrInvalidQuantity
			}
			c.Items[i].Quantity = merged
			return nil
		}
	}
	c.Items = append(c.Items, Item{ID: newID(), ProductID: productID, Quantity: quantity})
	return nil
}

// SetQuantity replaces the quantity of the line holding productID.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return ErrItemNotFound
}

// Remove deletes the line holding productID.
func (c *Cart) Remove(productID string) error {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart. The cart itself keeps existing.
func (c *Cart) Clear() { c.Items = nil }

func checkQuantity(q int) error {
	if q < MinQuantity || q > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// Line is a cart item resolved against the catalog.
type Line struct {
	Item
	// Product is nil when the product no longer exists in the catalog.
	Product   *product.Product
	UnitPrice decimal.Decimal
}

// Subtotal returns quantity times unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Priced is a cart together with its current catalog pricing.
type Priced struct {
	UserID    string
	Lines     []Line
	Total     decimal.Decimal
	UpdatedAt time.Time
}

// Price resolves every line of c against catalog. Lines whose product is
// missing from catalog are priced at zero.
func Price(c *Cart, catalog map[string]product.Product) Priced {
	lines := make([]Line, len(c.Items))
	for i, it := range c.Items {
		lines[i] = Line{Item: it, UnitPrice: decimal.Zero}
		if p, ok := catalog[it.ProductID]; ok {
			lines[i].Product = &p
			lines[i].UnitPrice = p.Price
		}
	}
	return Priced{UserID: c.UserID, Lines: lines, Total: Total(lines), UpdatedAt: c.UpdatedAt}
}

// Total is sum(quantity x unit price) over lines, rounded to cents.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

// Index maps products by id.
func Index(products []product.Product) map[string]product.Product {
	m := make(map[string]product.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}

// Repository persists carts.
type Repository interface {
	// Get returns the user's cart or ErrNotFound.
	Get(ctx context.Context, userID string) (*Cart, error)
	// GetForUpdate is Get that locks the cart until the surrounding atomic
	// unit ends.
	GetForUpdate(ctx context.Context, userID string) (*Cart, error)
	// Save creates or replaces the cart and all of its lines.
	Save(ctx context.Context, c *Cart) error
}
