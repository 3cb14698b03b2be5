package events

import (
	"context"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"
)

// LogPublisher writes events to the log. Used when no brokers are configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (LogPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for _, e := range events {
		logger.WithContext(ctx).Info().
			Str("topic", e.Topic).
			Str("order_id", e.OrderID).
			Str("cod_order_id", e.CODOrderID).
			Str("status", string(e.Status)).
			Str("reason", e.Reason).
			Msg("COD event")
	}
	return nil
}

func (LogPublisher) Close() error { return nil }
