package orders

import (
	"context"
	"log/slog"

	"github.com/viniciusfon/order-saga-demo/internal/domain"
	"github.com/viniciusfon/order-saga-demo/internal/messaging"
)

// StatusStore is the slice of the repository the saga consumers need.
type StatusStore interface {
	Cancel(ctx context.Context, id int64) (bool, error)
	Complete(ctx context.Context, id int64) (bool, error)
}

// FailureHandler consumes order.failed and cancels the referenced order: the
// compensating half of the saga.
type FailureHandler struct {
	store  StatusStore
	logger *slog.Logger
}

func NewFailureHandler(store StatusStore, logger *slog.Logger) *FailureHandler {
	return &FailureHandler{store: store, logger: logger}
}

func (h *FailureHandler) Handle(ctx context.Context, routingKey string, body []byte) messaging.Outcome {
	var event domain.OrderFailedEvent
	if err := messaging.Decode(body, &event); err != nil {
		h.logger.Error("failed to decode order.failed event", "error", err)
		return messaging.PermanentFailure
	}

	cancelled, err := h.store.Cancel(ctx, event.OrderID)
	if err != nil {
		h.logger.Error("failed to cancel order", "error", err, "order_id", event.OrderID)
		return messaging.TransientFailure
	}

	if !cancelled {
		// Unknown or already-terminal order: nothing to compensate.
		h.logger.Info("order.failed had no effect", "order_id", event.OrderID)
		return messaging.Success
	}

	h.logger.Info("order cancelled", "order_id", event.OrderID, "reason", event.Reason)
	return messaging.Success
}

// CompletionHandler consumes order.stockreduced and marks the order
// Completed, closing the happy path.
type CompletionHandler struct {
	store  StatusStore
	logger *slog.Logger
}

func NewCompletionHandler(store StatusStore, logger *slog.Logger) *CompletionHandler {
	return &CompletionHandler{store: store, logger: logger}
}

func (h *CompletionHandler) Handle(ctx context.Context, routingKey string, body []byte) messaging.Outcome {
	var event domain.StockReducedEvent
	if err := messaging.Decode(body, &event); err != nil {
		h.logger.Error("failed to decode order.stockreduced event", "error", err)
		return messaging.PermanentFailure
	}

	completed, err := h.store.Complete(ctx, event.OrderID)
	if err != nil {
		h.logger.Error("failed to complete order", "error", err, "order_id", event.OrderID)
		return messaging.TransientFailure
	}

	if !completed {
		h.logger.Info("order.stockreduced had no effect", "order_id", event.OrderID)
		return messaging.Success
	}

	h.logger.Info("order completed", "order_id", event.OrderID)
	return messaging.Success
}
