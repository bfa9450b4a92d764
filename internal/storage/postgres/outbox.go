package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/events"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (event_id) DO NOTHING`

	pendingOutboxSQL = `SELECT id, event_id, topic, key, payload, created_at FROM outbox
		WHERE sent_at IS NULL ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = $2 WHERE id = ANY($1)`
)

var (
	_ order.EventRecorder = (*OutboxRepository)(nil)
	_ events.Store        = (*OutboxRepository)(nil)
)

// OutboxRepository stores order events for later delivery.
type OutboxRepository struct {
	conn
	topic string
}

// NewOutboxRepository returns an OutboxRepository that records order events
// under topic.
func NewOutboxRepository(pool *pgxpool.Pool, topic string) *OutboxRepository {
	return &OutboxRepository{conn: conn{pool: pool}, topic: topic}
}

// Record inserts e keyed by order id, so a broker keeps per-order ordering.
func (r *OutboxRepository) Record(ctx context.Context, e order.Event) error {
	_, err := r.q(ctx).Exec(ctx, insertOutboxSQL, e.ID, r.topic, e.OrderID, encodeOrderEvent(e), e.OccurredAt)
	if err != nil {
		return errors.Wrapf(err, "record event %q", e.ID)
	}
	return nil
}

// Pending returns unsent messages, skipping rows locked by another relay.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]events.Message, error) {
	rows, err := r.q(ctx).Query(ctx, pendingOutboxSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch pending events")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Message, error) {
		var m events.Message
		err := row.Scan(&m.ID, &m.EventID, &m.Topic, &m.Key, &m.Payload, &m.CreatedAt)
		return m, err
	})
}

// MarkSent acknowledges delivered messages.
func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	if _, err := r.q(ctx).Exec(ctx, markOutboxSentSQL, ids, at); err != nil {
		return errors.Wrap(err, "mark events sent")
	}
	return nil
}

func encodeOrderEvent(ev order.Event) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("id")
	e.Str(ev.ID)
	e.FieldStart("type")
	e.Str(string(ev.Type))
	e.FieldStart("order_id")
	e.Str(ev.OrderID)
	e.FieldStart("user_id")
	e.Str(ev.UserID)
	e.FieldStart("status")
	e.Str(string(ev.Status))
	e.FieldStart("total_price")
	e.Str(ev.TotalPrice.StringFixed(2))
	e.FieldStart("coupon_id")
	if ev.CouponID == "" {
		e.Null()
	} else {
		e.Str(ev.CouponID)
	}
	e.FieldStart("occurred_at")
	e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}
