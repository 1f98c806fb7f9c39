package messaging

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Wire contract shared by every producer and consumer of order-domain events.
// Declarations are idempotent; redeclaring with different parameters is a
// configuration error the broker rejects.
const (
	ExchangeName           = "order-exchange"
	DeadLetterExchangeName = "order-exchange.dlx"
	DeadLetterQueue        = "order-dead-letter-queue"

	RoutingKeyOrderCreated = "order.created"
	RoutingKeyOrderFailed  = "order.failed"
	RoutingKeyStockReduced = "order.stockreduced"
	RoutingKeyOrderAll     = "order.*"

	QueueProductOrderCreated  = "product-order-created-queue"
	QueueOrderFailed          = "order-failed-queue"
	QueueOrderStockReduced    = "order-stock-reduced-queue"
	QueueNotificationWildcard = "notification-order-created-queue"
)

// DeclareTopology declares the shared topic exchange, the dead-letter path,
// and one durable queue bound to the exchange with the given key.
func DeclareTopology(ch *amqp.Channel, queue, bindingKey string) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(DeadLetterExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return err
	}

	if err := ch.QueueBind(DeadLetterQueue, "", DeadLetterExchangeName, false, nil); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchangeName,
	})
	if err != nil {
		return err
	}

	return ch.QueueBind(queue, bindingKey, ExchangeName, false, nil)
}

// DeclareExchange declares only the shared exchange, for processes that
// publish without consuming.
func DeclareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
}
