package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventCancelled     EventType = "order.cancelled"
	EventReturned      EventType = "order.returned"
	EventStatusChanged EventType = "order.status_changed"
)

// Event describes an order state change for downstream consumers.
type Event struct {
	ID         string
	Type       EventType
	OrderID    string
	UserID     string
	Status     Status
	TotalPrice decimal.Decimal
	CouponID   string
	OccurredAt time.Time
}

// EventRecorder stores events in the same atomic unit as the change they
// describe. Delivery happens later.
type EventRecorder interface {
	Record(ctx context.Context, e Event) error
}

type discardEvents struct{}

func (discardEvents) Record(context.Context, Event) error { return nil }
