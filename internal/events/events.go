// Package events delivers recorded domain events to a message broker.
//
// Events are written to an outbox table in the same transaction as the
// state change they describe. A Relay later reads pending rows, publishes
// them and marks them sent, so delivery is at-least-once.
package events

import (
	"context"
	"time"
)

// Message is an outbox row ready for publishing.
type Message struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store reads and acknowledges outbox rows.
type Store interface {
	// Pending returns up to limit unsent messages in insertion order, locked
	// against other relays until the surrounding atomic unit ends.
	Pending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
}

// Publisher sends messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}
