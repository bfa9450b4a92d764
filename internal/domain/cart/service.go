package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/uow"
)

// Service implements cart operations. Every mutation runs as one atomic
// unit, but concurrent mutations of the same cart outside checkout are
// last-write-wins.
type Service struct {
	carts    Repository
	products product.Repository
	uow      uow.UnitOfWork
	now      func() time.Time
	newID    func() string
}

// NewService returns a cart Service.
func NewService(carts Repository, products product.Repository, unit uow.UnitOfWork) *Service {
	return &Service{
		carts:    carts,
		products: products,
		uow:      unit,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Get returns the user's cart priced at current catalog prices.
func (s *Service) Get(ctx context.Context, userID string) (*Priced, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, c)
}

// AddItem adds quantity units of productID, creating the cart on first use.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*Priced, error) {
	return s.mutate(ctx, userID, true, func(ctx context.Context, c *Cart) error {
		if _, err := s.products.GetByID(ctx, productID); err != nil {
			return err
		}
		return c.Add(productID, quantity, s.newID)
	})
}

// UpdateItem sets the quantity of an existing line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*Priced, error) {
	return s.mutate(ctx, userID, false, func(_ context.Context, c *Cart) error {
		return c.SetQuantity(productID, quantity)
	})
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Priced, error) {
	return s.mutate(ctx, userID, false, func(_ context.Context, c *Cart) error {
		return c.Remove(productID)
	})
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, false, func(_ context.Context, c *Cart) error {
		c.Clear()
		return nil
	})
	return err
}

// CheckoutWith runs place and, only if it succeeds, empties the user's cart.
// Both happen in one atomic unit: when clearing fails the placed order is
// rolled back too, and when place fails the cart is left untouched.
func (s *Service) CheckoutWith(ctx context.Context, userID string, place func(ctx context.Context) error) error {
	return s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		if err := place(ctx); err != nil {
			return err
		}
		c, err := s.carts.GetForUpdate(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "reload cart")
		}
		c.Clear()
		c.UpdatedAt = s.now().UTC()
		if err := s.carts.Save(ctx, c); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, userID string, create bool, fn func(ctx context.Context, c *Cart) error) (*Priced, error) {
	var c *Cart
	err := s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.carts.GetForUpdate(ctx, userID)
		switch {
		case errors.Is(err, ErrNotFound) && create:
			c = &Cart{UserID: userID}
		case err != nil:
			return err
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		return s.carts.Save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.price(ctx, c)
}

func (s *Service) price(ctx context.Context, c *Cart) (*Priced, error) {
	if c.IsEmpty() {
		p := Price(c, nil)
		return &p, nil
	}
	products, err := s.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, errors.Wrap(err, "resolve cart products")
	}
	p := Price(c, Index(products))
	return &p, nil
}
