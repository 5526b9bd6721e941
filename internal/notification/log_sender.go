package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
)

// LogSender writes events to the log.  It stands in for the broker when no
// RabbitMQ URL is configured.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Publish(_ context.Context, ev queue.Event) error {
	log := s.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("room event",
		zap.String("event", ev.Name),
		zap.String("room", ev.Room),
		zap.Any("payload", ev.Payload),
		zap.Time("occurred_at", ev.OccurredAt))
	return nil
}
