package products

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/viniciusfon/order-saga-demo/internal/domain"
	"github.com/viniciusfon/order-saga-demo/internal/messaging"
)

type fakeStockStore struct {
	products  map[int64]*domain.Product
	processed map[string]bool
	getErr    error
	reduceErr error
}

func newFakeStockStore(products ...*domain.Product) *fakeStockStore {
	s := &fakeStockStore{
		products:  make(map[int64]*domain.Product),
		processed: make(map[string]bool),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeStockStore) GetByID(_ context.Context, id int64) (*domain.Product, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.products[id], nil
}

func (s *fakeStockStore) ReduceStock(_ context.Context, eventID string, productID int64, quantity int, publish func() error) error {
	if s.reduceErr != nil {
		return s.reduceErr
	}
	if s.processed[eventID] {
		return ErrAlreadyProcessed
	}

	product := s.products[productID]
	if product == nil || product.Stock < quantity {
		return ErrInsufficientStock
	}

	if publish != nil {
		if err := publish(); err != nil {
			return err
		}
	}

	s.processed[eventID] = true
	product.Stock -= quantity
	return nil
}

type published struct {
	routingKey string
	event      any
}

type fakePublisher struct {
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{routingKey: routingKey, event: event})
	return nil
}

func orderCreatedBody(t *testing.T, eventID string, orderID, productID int64, quantity int) []byte {
	t.Helper()
	body, err := messaging.Encode(&domain.OrderCreatedEvent{
		EventID:   eventID,
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}
	return body
}

func TestReservationHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("reduces stock and publishes stock reduced", func(t *testing.T) {
		store := newFakeStockStore(&domain.Product{ID: 7, Name: "widget", Price: 250, Stock: 10})
		publisher := &fakePublisher{}
		handler := NewReservationHandler(store, publisher, logger)

		outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, orderCreatedBody(t, "ev-1", 1, 7, 4))

		if outcome != messaging.Success {
			t.Fatalf("expected Success, got %v", outcome)
		}
		if got := store.products[7].Stock; got != 6 {
			t.Errorf("expected stock 6, got %d", got)
		}
		if len(publisher.events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(publisher.events))
		}
		if publisher.events[0].routingKey != messaging.RoutingKeyStockReduced {
			t.Errorf("expected routing key %s, got %s", messaging.RoutingKeyStockReduced, publisher.events[0].routingKey)
		}
		reduced, ok := publisher.events[0].event.(*domain.StockReducedEvent)
		if !ok || reduced.OrderID != 1 {
			t.Errorf("unexpected event: %+v", publisher.events[0].event)
		}
	})

	t.Run("insufficient stock publishes order failed and leaves stock unchanged", func(t *testing.T) {
		store := newFakeStockStore(&domain.Product{ID: 7, Name: "widget", Price: 250, Stock: 2})
		publisher := &fakePublisher{}
		handler := NewReservationHandler(store, publisher, logger)

		outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, orderCreatedBody(t, "ev-1", 1, 7, 4))

		if outcome != messaging.Success {
			t.Fatalf("expected Success, got %v", outcome)
		}
		if got := store.products[7].Stock; got != 2 {
			t.Errorf("expected stock 2, got %d", got)
		}
		if len(publisher.events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(publisher.events))
		}
		failed, ok := publisher.events[0].event.(*domain.OrderFailedEvent)
		if !ok {
			t.Fatalf("unexpected event: %+v", publisher.events[0].event)
		}
		if failed.OrderID != 1 || failed.Reason != "Insufficient stock" {
			t.Errorf("unexpected failure event: %+v", failed)
		}
	})

	t.Run("unknown product publishes order failed", func(t *testing.T) {
		store := newFakeStockStore()
		publisher := &fakePublisher{}
		handler := NewReservationHandler(store, publisher, logger)

		outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, orderCreatedBody(t, "ev-1", 1, 99, 1))

		if outcome != messaging.Success {
			t.Fatalf("expected Success, got %v", outcome)
		}
		failed, ok := publisher.events[0].event.(*domain.OrderFailedEvent)
		if !ok || failed.Reason != "Product not found" {
			t.Errorf("unexpected event: %+v", publisher.events[0].event)
		}
	})

	t.Run("duplicate delivery decrements at most once", func(t *testing.T) {
		store := newFakeStockStore(&domain.Product{ID: 7, Name: "widget", Price: 250, Stock: 10})
		publisher := &fakePublisher{}
		handler := NewReservationHandler(store, publisher, logger)

		body := orderCreatedBody(t, "ev-1", 1, 7, 4)
		first := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, body)
		second := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, body)

		if first != messaging.Success || second != messaging.Success {
			t.Fatalf("expected Success twice, got %v then %v", first, second)
		}
		if got := store.products[7].Stock; got != 6 {
			t.Errorf("expected stock 6 after redelivery, got %d", got)
		}
		if len(publisher.events) != 1 {
			t.Errorf("expected 1 published event after redelivery, got %d", len(publisher.events))
		}
	})

	t.Run("malformed payload is a permanent failure", func(t *testing.T) {
		handler := NewReservationHandler(newFakeStockStore(), &fakePublisher{}, logger)

		if outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, []byte("not json")); outcome != messaging.PermanentFailure {
			t.Fatalf("expected PermanentFailure, got %v", outcome)
		}
	})

	t.Run("store lookup error is transient", func(t *testing.T) {
		store := newFakeStockStore()
		store.getErr = errors.New("connection reset")
		handler := NewReservationHandler(store, &fakePublisher{}, logger)

		if outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, orderCreatedBody(t, "ev-1", 1, 7, 4)); outcome != messaging.TransientFailure {
			t.Fatalf("expected TransientFailure, got %v", outcome)
		}
	})

	t.Run("reduce error is transient", func(t *testing.T) {
		store := newFakeStockStore(&domain.Product{ID: 7, Stock: 10})
		store.reduceErr = errors.New("deadlock detected")
		handler := NewReservationHandler(store, &fakePublisher{}, logger)

		if outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, orderCreatedBody(t, "ev-1", 1, 7, 4)); outcome != messaging.TransientFailure {
			t.Fatalf("expected TransientFailure, got %v", outcome)
		}
	})

	t.Run("failed compensation publish is transient", func(t *testing.T) {
		store := newFakeStockStore(&domain.Product{ID: 7, Stock: 2})
		publisher := &fakePublisher{err: errors.New("broker gone")}
		handler := NewReservationHandler(store, publisher, logger)

		if outcome := handler.Handle(ctx, messaging.RoutingKeyOrderCreated, orderCreatedBody(t, "ev-1", 1, 7, 4)); outcome != messaging.TransientFailure {
			t.Fatalf("expected TransientFailure, got %v", outcome)
		}
		if got := store.products[7].Stock; got != 2 {
			t.Errorf("stock must be unchanged, got %d", got)
		}
	})
}
