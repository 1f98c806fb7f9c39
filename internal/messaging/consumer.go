package messaging

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// Outcome classifies how a delivery was handled and therefore how it is
// acknowledged.
type Outcome int

const (
	// Success acks the delivery. Terminal business failures (unknown
	// product, insufficient stock) are also Success: the handler emits a
	// compensating event instead of retrying.
	Success Outcome = iota
	// TransientFailure retries the delivery with a bounded counter; past
	// the limit it is dead-lettered.
	TransientFailure
	// PermanentFailure acks the delivery without effect, used for payloads
	// that can never be processed (decode failures).
	PermanentFailure
)

// HandlerFunc processes one delivery. Handlers log their own errors; the
// outcome alone drives acknowledgment.
type HandlerFunc func(ctx context.Context, routingKey string, body []byte) Outcome

const (
	retryCountHeader  = "x-retry-count"
	defaultMaxRetries = 5
)

var errDeliveriesClosed = errors.New("delivery channel closed")

// retryPublisher is the slice of the channel the retry path uses to schedule
// redeliveries.
type retryPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer runs a manual-ack subscription on one queue. Deliveries are
// processed one at a time in broker order (Qos 1, single goroutine).
type Consumer struct {
	ch         *amqp.Channel
	pub        retryPublisher
	queue      string
	bindingKey string
	maxRetries int
	logger     *slog.Logger
}

type ConsumerOption func(*Consumer)

func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetries = n
	}
}

func NewConsumer(ch *amqp.Channel, queue, bindingKey string, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		ch:         ch,
		pub:        ch,
		queue:      queue,
		bindingKey: bindingKey,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run declares the topology, subscribes, and dispatches deliveries to the
// handler until ctx is cancelled. In-flight handler calls finish before the
// loop exits.
func (c *Consumer) Run(ctx context.Context, handler HandlerFunc) error {
	if err := DeclareTopology(c.ch, c.queue, c.bindingKey); err != nil {
		return err
	}

	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("consuming", "queue", c.queue, "binding_key", c.bindingKey)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errDeliveriesClosed
			}
			c.process(ctx, d, handler)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery, handler HandlerFunc) {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(d.Headers))

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+c.queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(c.queue),
			semconv.MessagingRabbitmqDestinationRoutingKey(d.RoutingKey),
		),
	)
	defer span.End()

	switch handler(spanCtx, d.RoutingKey, d.Body) {
	case Success:
		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack delivery", "error", err, "queue", c.queue)
		}

	case PermanentFailure:
		span.SetStatus(codes.Error, "permanent failure")
		c.logger.Warn("dropping unprocessable delivery", "queue", c.queue, "routing_key", d.RoutingKey)
		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack delivery", "error", err, "queue", c.queue)
		}

	case TransientFailure:
		span.SetStatus(codes.Error, "transient failure")
		c.retry(spanCtx, d)
	}
}

// retry redelivers a transiently failed message with an incremented counter.
// The copy goes through the default exchange straight back to this queue so
// other subscribers of the original routing key do not see it again. Past the
// retry limit the delivery is nacked without requeue and the queue's DLX
// routes it to the dead-letter queue.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery) {
	retries := retryCount(d.Headers)

	if retries >= c.maxRetries {
		c.logger.Error("retries exhausted, dead-lettering", "queue", c.queue, "routing_key", d.RoutingKey, "retries", retries)
		if err := d.Nack(false, false); err != nil {
			c.logger.Error("failed to nack delivery", "error", err, "queue", c.queue)
		}
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(retries + 1)

	err := c.pub.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         d.Body,
	})
	if err != nil {
		// Could not schedule the retry copy; fall back to a broker
		// requeue so the message is not lost.
		c.logger.Error("failed to republish for retry", "error", err, "queue", c.queue)
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("failed to nack delivery", "error", err, "queue", c.queue)
		}
		return
	}

	c.logger.Warn("retrying delivery", "queue", c.queue, "routing_key", d.RoutingKey, "attempt", retries+1)
	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack delivery", "error", err, "queue", c.queue)
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
