package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher logs messages instead of sending them. It is used when no
// broker is configured.
type LogPublisher struct {
	lg *zap.Logger
}

func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

func (p *LogPublisher) Publish(_ context.Context, msgs ...Message) error {
	for _, m := range msgs {
		p.lg.Info("Event",
			zap.String("topic", m.Topic),
			zap.String("key", m.Key),
			zap.String("event_id", m.EventID),
			zap.ByteString("payload", m.Payload),
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
