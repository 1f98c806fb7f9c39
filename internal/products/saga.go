package products

import (
	"context"
	"errors"
	"log/slog"

	"github.com/viniciusfon/order-saga-demo/internal/domain"
	"github.com/viniciusfon/order-saga-demo/internal/messaging"
)

type StockStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	ReduceStock(ctx context.Context, eventID string, productID int64, quantity int, publish func() error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// ReservationHandler consumes order.created, re-validates stock and either
// reserves it (order.stockreduced) or compensates (order.failed). Unknown
// products and insufficient stock are terminal business outcomes, not
// infrastructure errors: the delivery is acked and the failure event carries
// the decision.
type ReservationHandler struct {
	store     StockStore
	publisher EventPublisher
	logger    *slog.Logger
}

func NewReservationHandler(store StockStore, publisher EventPublisher, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *ReservationHandler) Handle(ctx context.Context, routingKey string, body []byte) messaging.Outcome {
	var event domain.OrderCreatedEvent
	if err := messaging.Decode(body, &event); err != nil {
		h.logger.Error("failed to decode order.created event", "error", err)
		return messaging.PermanentFailure
	}

	product, err := h.store.GetByID(ctx, event.ProductID)
	if err != nil {
		h.logger.Error("failed to look up product", "error", err, "product_id", event.ProductID)
		return messaging.TransientFailure
	}

	if product == nil {
		h.logger.Warn("product not found", "product_id", event.ProductID, "order_id", event.OrderID)
		return h.publishFailed(ctx, event.OrderID, "Product not found")
	}

	if product.Stock < event.Quantity {
		h.logger.Warn("insufficient stock", "product_id", event.ProductID, "order_id", event.OrderID, "stock", product.Stock, "quantity", event.Quantity)
		return h.publishFailed(ctx, event.OrderID, "Insufficient stock")
	}

	err = h.store.ReduceStock(ctx, event.EventID, event.ProductID, event.Quantity, func() error {
		return h.publisher.Publish(ctx, messaging.RoutingKeyStockReduced, &domain.StockReducedEvent{OrderID: event.OrderID})
	})

	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		h.logger.Info("duplicate order.created delivery skipped", "event_id", event.EventID, "order_id", event.OrderID)
		return messaging.Success

	case errors.Is(err, ErrInsufficientStock):
		// Another consumer won the race between the check above and the
		// conditional decrement.
		h.logger.Warn("insufficient stock", "product_id", event.ProductID, "order_id", event.OrderID)
		return h.publishFailed(ctx, event.OrderID, "Insufficient stock")

	case err != nil:
		h.logger.Error("failed to reduce stock", "error", err, "order_id", event.OrderID)
		return messaging.TransientFailure
	}

	h.logger.Info("stock reduced", "product_id", event.ProductID, "order_id", event.OrderID, "quantity", event.Quantity)
	return messaging.Success
}

func (h *ReservationHandler) publishFailed(ctx context.Context, orderID int64, reason string) messaging.Outcome {
	event := &domain.OrderFailedEvent{OrderID: orderID, Reason: reason}
	if err := h.publisher.Publish(ctx, messaging.RoutingKeyOrderFailed, event); err != nil {
		h.logger.Error("failed to publish order.failed", "error", err, "order_id", orderID)
		return messaging.TransientFailure
	}
	return messaging.Success
}
