package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// Closed reports whether no further customer transition is possible.
func (s Status) Closed() bool {
	return s == StatusCancelled || s == StatusReturned
}

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

// PaymentCash is the only method checkout produces.
const PaymentCash PaymentMethod = "cash"

// Order is the immutable record of a checkout. Only OrderStatus,
// PaymentStatus and UpdatedAt change after creation.
type Order struct {
	ID     string
	UserID string
	Items  []OrderItem
	// Subtotal is sum(quantity x price) before the coupon.
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	TotalPrice decimal.Decimal
	// CouponID is empty when no coupon was applied.
	CouponID        string
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	OrderStatus     Status
	ShippingAddress ShippingAddress
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a purchased line. Price is the catalog price at checkout.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// ShippingAddress is a copy of the address the order ships to, so later
// edits of the address book do not rewrite past orders.
type ShippingAddress struct {
	Street      string
	HouseNumber *int
	PostalCode  int
}

// Filter narrows order listings. Empty fields match everything.
type Filter struct {
	UserID string
	Status Status
	Page   int
	Limit  int
}

// Offset returns the row offset for the requested page.
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Repository defines persistence operations for orders. Orders are never
// deleted.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate is GetByID that locks the order until the surrounding
	// atomic unit ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// List returns a page of orders, newest first, and the total match count.
	List(ctx context.Context, filter Filter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}
