package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// ErrInvalidStatus is returned for an unknown or non-settable status.
var ErrInvalidStatus = apperr.New(apperr.Invalid, "invalid order status")

// settable are the statuses an administrator may assign directly.
var settable = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusShipped:   true,
	StatusDelivered: true,
	StatusCancelled: true,
}

// ListForUser returns the user's orders, newest first. A user without
// orders gets an empty page.
func (s *Service) ListForUser(ctx context.Context, userID string, page, limit int) ([]Order, int, error) {
	return s.List(ctx, Filter{UserID: userID, Page: page, Limit: limit})
}

// GetForUser returns an order owned by userID. Orders of other users are
// reported as missing.
func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Get returns any order.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, int, error) {
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, total, nil
}

// Cancel cancels the user's order and puts its items back in stock.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*Order, error) {
	return s.transition(ctx, userID, orderID, StatusCancelled, EventCancelled, func(o *Order) error {
		if o.OrderStatus.Closed() {
			return ErrAlreadyClosed
		}
		return nil
	})
}

// Return marks the user's order as returned and puts its items back in
// stock. Cancelled orders were already restocked and cannot be returned.
func (s *Service) Return(ctx context.Context, userID, orderID string) (*Order, error) {
	return s.transition(ctx, userID, orderID, StatusReturned, EventReturned, func(o *Order) error {
		switch o.OrderStatus {
		case StatusReturned:
			return ErrAlreadyReturned
		case StatusCancelled:
			return ErrCancelled
		}
		return nil
	})
}

// UpdateStatus sets the status of any order. It only changes the status;
// stock is not touched.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if !settable[status] {
		return nil, ErrInvalidStatus
	}
	var updated *Order
	err := s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.orders.UpdateStatus(ctx, o.ID, status, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.OrderStatus = status
		o.UpdatedAt = now
		if err := s.events.Record(ctx, s.event(EventStatusChanged, o, now)); err != nil {
			return errors.Wrap(err, "record order event")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, apperr.Persist(err, "update order status")
	}
	return updated, nil
}

func (s *Service) transition(
	ctx context.Context,
	userID, orderID string,
	to Status,
	kind EventType,
	check func(o *Order) error,
) (*Order, error) {
	var updated *Order
	err := s.uow.RunAtomically(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrNotFound
		}
		if err := check(o); err != nil {
			return err
		}
		if err := s.restock(ctx, o); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.orders.UpdateStatus(ctx, o.ID, to, now); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.OrderStatus = to
		o.UpdatedAt = now
		if err := s.events.Record(ctx, s.event(kind, o, now)); err != nil {
			return errors.Wrap(err, "record order event")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, apperr.Persist(err, "transition order")
	}
	zctx.From(ctx).Info("Order transitioned",
		zap.String("order_id", updated.ID),
		zap.String("status", string(to)),
	)
	return updated, nil
}

// restock returns the order's units to the catalog. Products deleted since
// checkout are skipped.
func (s *Service) restock(ctx context.Context, o *Order) error {
	for _, it := range o.Items {
		err := s.products.AdjustStock(ctx, it.ProductID, it.Quantity)
		if errors.Is(err, product.ErrNotFound) {
			zctx.From(ctx).Warn("Skipping restock of deleted product",
				zap.String("order_id", o.ID),
				zap.String("product_id", it.ProductID),
			)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "restock %s", it.ProductID)
		}
	}
	return nil
}
