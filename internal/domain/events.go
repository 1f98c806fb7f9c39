package domain

import (
	"errors"
	"time"
)

// OrderCreatedEvent announces an accepted order. EventID makes redelivered
// copies detectable by the stock-reservation consumer.
type OrderCreatedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     int64     `json:"order_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int       `json:"quantity"`
	TotalAmount int64     `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e *OrderCreatedEvent) Validate() error {
	switch {
	case e.EventID == "":
		return errors.New("missing event_id")
	case e.OrderID == 0:
		return errors.New("missing order_id")
	case e.ProductID == 0:
		return errors.New("missing product_id")
	case e.Quantity <= 0:
		return errors.New("missing or non-positive quantity")
	}
	return nil
}

// OrderFailedEvent is the saga's compensating event: the referenced order
// must be cancelled.
type OrderFailedEvent struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

func (e *OrderFailedEvent) Validate() error {
	if e.OrderID == 0 {
		return errors.New("missing order_id")
	}
	return nil
}

// StockReducedEvent closes the saga's happy path.
type StockReducedEvent struct {
	OrderID int64 `json:"order_id"`
}

func (e *StockReducedEvent) Validate() error {
	if e.OrderID == 0 {
		return errors.New("missing order_id")
	}
	return nil
}
