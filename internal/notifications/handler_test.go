package notifications

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/viniciusfon/order-saga-demo/internal/messaging"
)

func TestEventLogger_AlwaysAcks(t *testing.T) {
	logger := NewEventLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	tests := []struct {
		name       string
		routingKey string
		body       []byte
	}{
		{"order created", messaging.RoutingKeyOrderCreated, []byte(`{"event_id":"e1","order_id":1,"product_id":7,"quantity":4}`)},
		{"order failed", messaging.RoutingKeyOrderFailed, []byte(`{"order_id":1,"reason":"Insufficient stock"}`)},
		{"stock reduced", messaging.RoutingKeyStockReduced, []byte(`{"order_id":1}`)},
		{"garbage payload", messaging.RoutingKeyOrderCreated, []byte("not json")},
		{"empty payload", messaging.RoutingKeyOrderFailed, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if outcome := logger.Handle(ctx, tt.routingKey, tt.body); outcome != messaging.Success {
				t.Errorf("expected Success, got %v", outcome)
			}
		})
	}
}
