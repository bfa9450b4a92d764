package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/uow"
)

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Relay moves messages from a Store to a Publisher.
type Relay struct {
	store Store
	pub   Publisher
	uow   uow.UnitOfWork
	cfg   RelayConfig
	lg    *zap.Logger
	now   func() time.Time
}

// NewRelay returns a Relay. Zero config values get defaults of one second
// and 100 messages.
func NewRelay(store Store, pub Publisher, unit uow.UnitOfWork, cfg RelayConfig, lg *zap.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{store: store, pub: pub, uow: unit, cfg: cfg, lg: lg, now: time.Now}
}

// Run flushes the outbox every interval until ctx is cancelled. Failed
// flushes are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.lg.Warn("Outbox flush failed", zap.Error(err))
				break
			}
			// A full batch means more rows may be waiting.
			if n < r.cfg.BatchSize {
				break
			}
		}
	}
}

// Flush publishes one batch and marks it sent. Rows stay locked while
// publishing, so concurrent relays never send the same batch. A publish
// failure leaves the rows pending.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int
	err := r.uow.RunAtomically(ctx, func(ctx context.Context) error {
		msgs, err := r.store.Pending(ctx, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := r.pub.Publish(ctx, msgs...); err != nil {
			return errors.Wrap(err, "publish")
		}
		ids := make([]int64, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := r.store.MarkSent(ctx, ids, r.now().UTC()); err != nil {
			return err
		}
		sent = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		r.lg.Debug("Outbox flushed", zap.Int("count", sent))
	}
	return sent, nil
}
