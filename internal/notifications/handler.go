package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/viniciusfon/order-saga-demo/internal/messaging"
)

// EventLogger subscribes to the order.* wildcard purely for observability.
// It never mutates state and never blocks the saga, so every delivery is
// acked regardless of content.
type EventLogger struct {
	logger *slog.Logger
}

func NewEventLogger(logger *slog.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (l *EventLogger) Handle(ctx context.Context, routingKey string, body []byte) messaging.Outcome {
	var event struct {
		OrderID int64  `json:"order_id"`
		Reason  string `json:"reason"`
	}

	if err := json.Unmarshal(body, &event); err != nil {
		l.logger.Warn("unreadable order event", "routing_key", routingKey, "error", err)
		return messaging.Success
	}

	attrs := []any{"routing_key", routingKey, "order_id", event.OrderID}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}

	l.logger.Info("order event received", attrs...)
	return messaging.Success
}
